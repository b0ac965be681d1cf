package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPost_Success(t *testing.T) {
	var gotBody string
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPSender(time.Second)
	if err := s.Post(context.Background(), srv.URL, []byte(`{"event":"task.completed"}`)); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if gotBody != `{"event":"task.completed"}` {
		t.Errorf("unexpected body %q", gotBody)
	}
	if gotContentType != "application/json" {
		t.Errorf("unexpected content type %q", gotContentType)
	}
}

func TestPost_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewHTTPSender(time.Second)
	if err := s.Post(context.Background(), srv.URL, []byte("{}")); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestPost_Unreachable(t *testing.T) {
	s := NewHTTPSender(100 * time.Millisecond)
	if err := s.Post(context.Background(), "http://127.0.0.1:1/hook", []byte("{}")); err == nil {
		t.Error("expected error for unreachable endpoint")
	}
}
