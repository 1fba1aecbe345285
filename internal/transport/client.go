package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"assistant/internal/attachment"
	"assistant/internal/chat"
	"assistant/internal/orchestrator"
)

// StatusError 服务端返回的非 2xx 响应
// StatusError is a non-2xx reply; Message is the server's user-facing text.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat api: status %d: %s", e.Code, e.Message)
}

// ChatRequest is what a client sends for one turn.
type ChatRequest struct {
	Message     string
	Context     *orchestrator.PageContext
	History     []orchestrator.HistoryMessage
	Model       string
	Attachments []attachment.Attachment
}

// Client 调用 /api/chat 的 HTTP 客户端
// Client talks to the chat API. Requests without attachments go out as JSON;
// with attachments as multipart/form-data.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	hc := &http.Client{}
	if timeout > 0 {
		hc.Timeout = timeout
	}
	return &Client{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"), http: hc}
}

// BaseURL returns the server root the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Send(ctx context.Context, req ChatRequest) (orchestrator.Response, error) {
	var (
		body        io.Reader
		contentType string
		err         error
	)
	if len(req.Attachments) > 0 {
		body, contentType, err = encodeMultipart(req)
	} else {
		body, contentType, err = encodeJSON(req)
	}
	if err != nil {
		return orchestrator.Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", body)
	if err != nil {
		return orchestrator.Response{}, errors.Wrap(err, "new chat request")
	}
	httpReq.Header.Set("Content-Type", contentType)

	var out orchestrator.Response
	if err := c.do(httpReq, &out); err != nil {
		return orchestrator.Response{}, err
	}
	return out, nil
}

// Tools fetches the tool schemas the server exposes.
func (c *Client) Tools(ctx context.Context) ([]chat.ToolSchema, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tools", nil)
	if err != nil {
		return nil, errors.Wrap(err, "new tools request")
	}
	var out struct {
		Tools []chat.ToolSchema `json:"tools"`
	}
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// Health reports whether the server answers /healthz.
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return errors.Wrap(err, "new health request")
	}
	var out map[string]string
	return c.do(httpReq, &out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		if json.Unmarshal(data, &eb) != nil || eb.Message == "" {
			eb.Message = strings.TrimSpace(string(data))
		}
		return &StatusError{Code: resp.StatusCode, Message: eb.Message}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func encodeJSON(req ChatRequest) (io.Reader, string, error) {
	data, err := json.Marshal(ChatPayload{
		Message:  req.Message,
		Context:  req.Context,
		Messages: req.History,
		Model:    req.Model,
	})
	if err != nil {
		return nil, "", errors.Wrap(err, "encode chat payload")
	}
	return bytes.NewReader(data), "application/json", nil
}

func encodeMultipart(req ChatRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"message":         req.Message,
		"model":           req.Model,
		"attachmentCount": strconv.Itoa(len(req.Attachments)),
		"context":         "null",
	}
	if req.Context != nil {
		data, err := json.Marshal(req.Context)
		if err != nil {
			return nil, "", errors.Wrap(err, "encode context")
		}
		fields["context"] = string(data)
	}
	history := req.History
	if history == nil {
		history = []orchestrator.HistoryMessage{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return nil, "", errors.Wrap(err, "encode history")
	}
	fields["messages"] = string(data)

	for _, k := range []string{"message", "context", "messages", "model", "attachmentCount"} {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, "", errors.Wrapf(err, "write field %s", k)
		}
	}
	for i, a := range req.Attachments {
		key := fmt.Sprintf("attachment-%d", i)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, key, a.Name))
		h.Set("Content-Type", a.Type)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", errors.Wrapf(err, "create part %s", key)
		}
		if _, err := part.Write(a.Data); err != nil {
			return nil, "", errors.Wrapf(err, "write part %s", key)
		}
		size := a.Size
		if size <= 0 {
			size = int64(len(a.Data))
		}
		for suffix, v := range map[string]string{"-name": a.Name, "-type": a.Type, "-size": strconv.FormatInt(size, 10)} {
			if err := w.WriteField(key+suffix, v); err != nil {
				return nil, "", errors.Wrapf(err, "write field %s%s", key, suffix)
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "close multipart writer")
	}
	return &buf, w.FormDataContentType(), nil
}
