package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"

	"assistant/internal/attachment"
	"assistant/internal/chat"
	"assistant/internal/orchestrator"
)

// User-facing texts of the chat endpoint.
const (
	MsgInvalidMessage = "Invalid message content"
	MsgNotConfigured  = "AI service is not configured. Please check the API key."
	MsgUpstream       = "I apologize, but I encountered an error processing your request. Please try again."
	MsgTooLarge       = "Request body is too large"
)

// Runner 执行一次对话回合
// Runner executes one chat turn.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) (orchestrator.Response, error)
	Tools() []chat.ToolSchema
}

// HandlerConfig configures the chat API handler.
type HandlerConfig struct {
	Runner Runner
	Logger *log.Logger
	// MaxBodyBytes caps the request body; 0 means 32 MiB.
	MaxBodyBytes int64
	// RequestTimeout bounds one Run; 0 means no extra deadline.
	RequestTimeout time.Duration
}

// Handler serves the chat API.
type Handler struct {
	runner       Runner
	logger       *log.Logger
	maxBodyBytes int64
	timeout      time.Duration
	mux          *http.ServeMux
}

const defaultMaxBodyBytes = 32 << 20

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Runner == nil {
		panic("transport.Handler: Runner is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	h := &Handler{
		runner:       cfg.Runner,
		logger:       logger,
		maxBodyBytes: maxBody,
		timeout:      cfg.RequestTimeout,
		mux:          http.NewServeMux(),
	}
	h.mux.HandleFunc("POST /api/chat", h.handleChat)
	h.mux.HandleFunc("GET /api/tools", h.handleTools)
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	req, err := decodeRequest(r, h.maxBodyBytes)
	if err != nil {
		status, msg := classify(err)
		h.logger.Warn("chat request rejected", "status", status, "err", err)
		writeJSON(w, status, errorBody{Message: msg})
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	resp, err := h.runner.Run(ctx, req)
	if err != nil {
		status, msg := classify(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("chat request failed", "status", status, "err", err)
		} else {
			h.logger.Warn("chat request rejected", "status", status, "err", err)
		}
		writeJSON(w, status, errorBody{Message: msg})
		return
	}
	if resp.Actions == nil {
		resp.Actions = []orchestrator.Action{}
	}
	h.logger.Info("chat request served",
		"attachments", len(req.Attachments),
		"history", len(req.History),
		"tools", resp.FunctionResult != nil,
		"elapsed", time.Since(start).Round(time.Millisecond))
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleTools(w http.ResponseWriter, _ *http.Request) {
	defs := h.runner.Tools()
	if defs == nil {
		defs = []chat.ToolSchema{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": defs})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// classify 将错误映射为状态码与用户可见文本
// classify maps an error onto the HTTP status and user-facing message.
func classify(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	var invalid *attachment.ValidationError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, MsgTooLarge
	case errors.As(err, &invalid):
		return http.StatusBadRequest, fmt.Sprintf("Attachment %s exceeds the %s limit", invalid.Name, attachment.FormatSize(invalid.Limit))
	case errors.Is(err, errBadRequest), errors.Is(err, orchestrator.ErrInvalidMessage):
		return http.StatusBadRequest, MsgInvalidMessage
	case errors.Is(err, orchestrator.ErrMissingCredential):
		return http.StatusInternalServerError, MsgNotConfigured
	}
	return http.StatusInternalServerError, MsgUpstream
}

// errorBody is the reply shape of every failed chat request.
type errorBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
