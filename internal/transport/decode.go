package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"assistant/internal/attachment"
	"assistant/internal/orchestrator"
)

// errBadRequest marks request bodies that cannot be decoded.
var errBadRequest = errors.New("malformed chat request")

// ChatPayload is the JSON form of POST /api/chat.
type ChatPayload struct {
	Message  string                        `json:"message"`
	Context  *orchestrator.PageContext     `json:"context,omitempty"`
	Messages []orchestrator.HistoryMessage `json:"messages,omitempty"`
	Model    string                        `json:"model,omitempty"`
}

func (p ChatPayload) request() orchestrator.Request {
	return orchestrator.Request{
		Message: p.Message,
		Context: p.Context,
		History: p.Messages,
		Model:   strings.TrimSpace(p.Model),
	}
}

// decodeRequest 解析 JSON 或 multipart 请求体
// decodeRequest normalizes a JSON or multipart/form-data body into an
// orchestrator request.
func decodeRequest(r *http.Request, maxMemory int64) (orchestrator.Request, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return decodeMultipart(r, maxMemory)
	}

	var payload ChatPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return orchestrator.Request{}, err
		}
		return orchestrator.Request{}, errors.Mark(errors.Wrap(err, "decode json body"), errBadRequest)
	}
	return payload.request(), nil
}

func decodeMultipart(r *http.Request, maxMemory int64) (orchestrator.Request, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return orchestrator.Request{}, err
		}
		return orchestrator.Request{}, errors.Mark(errors.Wrap(err, "parse multipart form"), errBadRequest)
	}
	form := r.MultipartForm
	defer func() { _ = form.RemoveAll() }()

	payload := ChatPayload{
		Message: r.FormValue("message"),
		Model:   r.FormValue("model"),
	}
	if raw := strings.TrimSpace(r.FormValue("context")); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &payload.Context); err != nil {
			return orchestrator.Request{}, errors.Mark(errors.Wrap(err, "decode context field"), errBadRequest)
		}
	}
	if raw := strings.TrimSpace(r.FormValue("messages")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload.Messages); err != nil {
			return orchestrator.Request{}, errors.Mark(errors.Wrap(err, "decode messages field"), errBadRequest)
		}
	}
	req := payload.request()

	count, _ := strconv.Atoi(strings.TrimSpace(r.FormValue("attachmentCount")))
	for i := 0; i < count; i++ {
		key := fmt.Sprintf("attachment-%d", i)
		files := form.File[key]
		if len(files) == 0 {
			continue
		}
		fh := files[0]
		f, err := fh.Open()
		if err != nil {
			return orchestrator.Request{}, errors.Wrapf(err, "open %s", key)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return orchestrator.Request{}, errors.Wrapf(err, "read %s", key)
		}

		a := attachment.Attachment{
			Name: strings.TrimSpace(r.FormValue(key + "-name")),
			Type: strings.TrimSpace(r.FormValue(key + "-type")),
			Data: data,
		}
		if a.Name == "" {
			a.Name = fh.Filename
		}
		if a.Type == "" {
			a.Type = fh.Header.Get("Content-Type")
		}
		a.Type = attachment.Sniff(data, a.Type)
		if n, err := strconv.ParseInt(strings.TrimSpace(r.FormValue(key+"-size")), 10, 64); err == nil && n > 0 {
			a.Size = n
		} else {
			a.Size = int64(len(data))
		}
		req.Attachments = append(req.Attachments, a)
	}
	return req, nil
}
