package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flux-project/flux-server/internal/httperr"
	"github.com/gin-gonic/gin"
)

type fakeRelay struct{ calls int }

func (r *fakeRelay) Publish(context.Context, []Tier) error {
	r.calls++
	return nil
}

func newEngine(block chan struct{}) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.POST("/echo/:id", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
		c.Header("X-Echo", c.Param("id"))
		c.JSON(http.StatusCreated, gin.H{
			"id":     c.Param("id"),
			"body":   body,
			"socket": ConnIDFromContext(c.Request.Context()) != "",
		})
	})
	engine.GET("/slow", func(c *gin.Context) {
		select {
		case <-block:
		case <-c.Request.Context().Done():
		}
		c.Status(http.StatusOK)
	})
	return engine
}

func TestBridge_MatchesHTTP(t *testing.T) {
	engine := newEngine(nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo/7", bytes.NewBufferString(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)

	bridge := NewBridge(engine, time.Second)
	reply := bridge.Dispatch(context.Background(), NewConn("c1", "10.0.0.1:1234", 8), Message{
		Method:    "post",
		URL:       "/echo/7",
		Data:      json.RawMessage(`{"a":1}`),
		RequestID: "r1",
	})

	if reply.StatusCode != rec.Code || reply.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", rec.Code, reply.StatusCode)
	}
	if reply.StatusMessage != "Created" {
		t.Fatalf("unexpected status message %q", reply.StatusMessage)
	}
	if reply.Headers["X-Echo"] != "7" {
		t.Fatalf("expected echoed header, got %v", reply.Headers)
	}

	var httpBody, socketBody map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &httpBody)
	_ = json.Unmarshal(reply.Data, &socketBody)
	if httpBody["socket"] != false || socketBody["socket"] != true {
		t.Fatalf("expected connection id only on the bridged request: http=%v socket=%v", httpBody, socketBody)
	}
	delete(httpBody, "socket")
	delete(socketBody, "socket")
	httpJSON, _ := json.Marshal(httpBody)
	socketJSON, _ := json.Marshal(socketBody)
	if !bytes.Equal(httpJSON, socketJSON) {
		t.Fatalf("expected identical bodies, http=%s socket=%s", httpJSON, socketJSON)
	}
}

func TestBridge_Timeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	bridge := NewBridge(newEngine(block), 50*time.Millisecond)

	start := time.Now()
	reply := bridge.Dispatch(context.Background(), NewConn("c1", "", 8), Message{Method: "GET", URL: "/slow", RequestID: "r2"})
	if time.Since(start) > 2*time.Second {
		t.Fatalf("expected dispatch to return promptly")
	}
	if reply.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", reply.StatusCode)
	}
	var envelope httperr.Envelope
	if err := json.Unmarshal(reply.Data, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error == nil || envelope.Error.Status != httperr.StatusSocketTimeout {
		t.Fatalf("expected SocketTimeout, got %+v", envelope.Error)
	}
}

func TestBridge_NotFoundRoute(t *testing.T) {
	bridge := NewBridge(newEngine(nil), time.Second)
	reply := bridge.Dispatch(context.Background(), NewConn("c1", "", 8), Message{Method: "GET", URL: "missing"})
	if reply.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", reply.StatusCode)
	}
}
