package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/flux-project/flux-server/internal/httperr"
	"github.com/flux-project/flux-server/internal/metrics"
	log "github.com/sirupsen/logrus"
)

// Message is a request received over a socket.
type Message struct {
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers,omitempty"`
	Data      json.RawMessage   `json:"data,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
}

// Reply is the response emitted as `response-<requestId>`.
type Reply struct {
	Headers       map[string]string `json:"headers"`
	StatusCode    int               `json:"statusCode"`
	StatusMessage string            `json:"statusMessage"`
	Data          json.RawMessage   `json:"data"`
}

// ReplyEvent is the event name of the reply to requestID.
func ReplyEvent(requestID string) string {
	return "response-" + requestID
}

// Bridge runs socket messages through the same http.Handler as HTTP requests.
type Bridge struct {
	handler http.Handler
	timeout time.Duration
}

// NewBridge builds a bridge; a bridged request running longer than timeout gets a SocketTimeout reply.
func NewBridge(handler http.Handler, timeout time.Duration) *Bridge {
	return &Bridge{handler: handler, timeout: timeout}
}

// Dispatch serves msg on behalf of conn and returns exactly one reply.
func (b *Bridge) Dispatch(ctx context.Context, conn *Conn, msg Message) Reply {
	reqCtx, cancel := context.WithCancel(WithConnID(ctx, conn.ID()))
	req, errReq := newRequest(reqCtx, conn, msg)
	if errReq != nil {
		cancel()
		metrics.RecordBridge(metrics.OutcomeCompleted)
		return errorReply(httperr.BadRequest("Invalid socket request: " + errReq.Error()))
	}

	rec := newCaptureWriter()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if recovered := recover(); recovered != nil {
				log.WithField("panic", recovered).WithField("url", msg.URL).Error("realtime: bridged handler panicked")
				rec.fail()
			}
		}()
		b.handler.ServeHTTP(rec, req)
	}()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case <-done:
		cancel()
		metrics.RecordBridge(metrics.OutcomeCompleted)
		return rec.reply()
	case <-timer.C:
		cancel()
		metrics.RecordBridge(metrics.OutcomeTimeout)
		log.WithFields(log.Fields{"method": msg.Method, "url": msg.URL, "conn_id": conn.ID()}).Warn("realtime: bridged request timed out")
		return errorReply(httperr.Expected(http.StatusInternalServerError, httperr.StatusSocketTimeout, "Socket request timed out"))
	case <-conn.Done():
		cancel()
		metrics.RecordBridge(metrics.OutcomeAborted)
		return errorReply(httperr.Expected(http.StatusInternalServerError, httperr.StatusSocketTimeout, "Socket closed before completion"))
	}
}

func newRequest(ctx context.Context, conn *Conn, msg Message) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(msg.Method))
	if method == "" {
		method = http.MethodGet
	}
	target := strings.TrimSpace(msg.URL)
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}

	var body *bytes.Reader
	if len(msg.Data) > 0 && string(msg.Data) != "null" {
		body = bytes.NewReader(msg.Data)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for key, value := range msg.Headers {
		req.Header.Set(key, value)
	}
	if body.Len() > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = conn.RemoteAddr()
	return req, nil
}

func errorReply(apiErr *httperr.Error) Reply {
	data, _ := json.Marshal(httperr.Envelope{Error: apiErr})
	return Reply{
		Headers:       map[string]string{"Content-Type": "application/json; charset=utf-8"},
		StatusCode:    apiErr.Code,
		StatusMessage: http.StatusText(apiErr.Code),
		Data:          data,
	}
}

// captureWriter buffers a handler's response for the bridge.
type captureWriter struct {
	mu     sync.Mutex
	header http.Header
	status int
	body   bytes.Buffer
	failed bool
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{header: make(http.Header)}
}

// Header implements http.ResponseWriter.
func (w *captureWriter) Header() http.Header { return w.header }

// WriteHeader implements http.ResponseWriter.
func (w *captureWriter) WriteHeader(status int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == 0 {
		w.status = status
	}
}

// Write implements http.ResponseWriter.
func (w *captureWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(p)
}

func (w *captureWriter) fail() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failed = true
}

func (w *captureWriter) reply() Reply {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failed {
		return errorReply(httperr.Internal(nil))
	}
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	headers := make(map[string]string, len(w.header))
	for key, values := range w.header {
		headers[key] = strings.Join(values, ", ")
	}
	return Reply{
		Headers:       headers,
		StatusCode:    status,
		StatusMessage: http.StatusText(status),
		Data:          bodyJSON(w.body.Bytes()),
	}
}

// bodyJSON returns body unchanged when it is JSON, or as a JSON string otherwise.
func bodyJSON(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(trimmed) {
		return json.RawMessage(append([]byte(nil), trimmed...))
	}
	encoded, _ := json.Marshal(string(body))
	return encoded
}
