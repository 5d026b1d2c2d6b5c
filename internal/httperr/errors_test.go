package httperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func TestFrom_DegradesUnknownErrors(t *testing.T) {
	apiErr := From(errors.New("boom"))
	if apiErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected code=500, got %d", apiErr.Code)
	}
	if apiErr.Status != StatusInternal {
		t.Fatalf("expected status=%s, got %s", StatusInternal, apiErr.Status)
	}
	if apiErr.Message == "boom" {
		t.Fatalf("expected generic message, cause leaked")
	}
}

func TestFrom_KeepsWrappedAPIError(t *testing.T) {
	wrapped := fmt.Errorf("resource: update: %w", Forbidden("nope"))
	apiErr := From(wrapped)
	if apiErr.Code != http.StatusForbidden || apiErr.Status != StatusForbidden {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestEnvelopeFor_JSONShape(t *testing.T) {
	body, err := json.Marshal(EnvelopeFor(Expected(http.StatusNotImplemented, "EtuUTTNotConfigured", "not configured")))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"_error":{"code":501,"status":"EtuUTTNotConfigured","message":"not configured"}}`
	if string(body) != want {
		t.Fatalf("expected %s, got %s", want, body)
	}
}

func TestHandler_WritesEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(Handler(nil))
	engine.GET("/forbidden", func(c *gin.Context) { Abort(c, Forbidden("no")) })
	engine.GET("/missing", func(c *gin.Context) { Abort(c, fmt.Errorf("load: %w", gorm.ErrRecordNotFound)) })
	engine.GET("/boom", func(c *gin.Context) { Abort(c, errors.New("db exploded")) })

	cases := map[string]struct {
		code   int
		status string
	}{
		"/forbidden": {http.StatusForbidden, StatusForbidden},
		"/missing":   {http.StatusNotFound, StatusNotFound},
		"/boom":      {http.StatusInternalServerError, StatusInternal},
	}
	for path, want := range cases {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want.code {
			t.Fatalf("%s: expected code=%d, got %d", path, want.code, rec.Code)
		}
		var envelope Envelope
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("%s: decode: %v", path, err)
		}
		if envelope.Error == nil || envelope.Error.Status != want.status || envelope.Error.Code != want.code {
			t.Fatalf("%s: unexpected envelope %+v", path, envelope.Error)
		}
		if path == "/boom" && envelope.Error.Message == "db exploded" {
			t.Fatalf("expected internal cause to stay private")
		}
	}
}

func TestRecovery_WritesInternalEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(Handler(nil), Recovery())
	engine.GET("/panic", func(*gin.Context) { panic("secret detail") })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected code=500, got %d", rec.Code)
	}
	var envelope Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	if envelope.Error == nil || envelope.Error.Status != StatusInternal {
		t.Fatalf("unexpected envelope %+v", envelope.Error)
	}
	if envelope.Error.Message == "secret detail" {
		t.Fatalf("expected panic value to stay private")
	}
}
