package generate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reelcut/reelcut/internal/timeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPClient_Generate_Success(t *testing.T) {
	var received Request
	var receivedAuth, receivedDevice string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate/video" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		receivedAuth = r.Header.Get("Authorization")
		receivedDevice = r.Header.Get("X-Reelcut-Device-Id")
		if r.Header.Get("X-Reelcut-Request-Id") == "" {
			t.Error("missing request id header")
		}
		json.NewDecoder(r.Body).Decode(&received)

		json.NewEncoder(w).Encode(Output{URL: "https://cdn.example/scene-3.mp4", Duration: 7.5})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-token", testLogger())
	client.SetDeviceID("dev-1")

	out, err := client.Generate(context.Background(), Request{Kind: timeline.KindVideo, Prompt: "a harbour at dawn", Scene: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.URL != "https://cdn.example/scene-3.mp4" || out.Duration != 7.5 {
		t.Errorf("output = %+v", out)
	}
	if receivedAuth != "Bearer test-token" {
		t.Errorf("auth = %q, want %q", receivedAuth, "Bearer test-token")
	}
	if receivedDevice != "dev-1" {
		t.Errorf("device id = %q, want dev-1", receivedDevice)
	}
	if received.Scene != 3 || received.Prompt != "a harbour at dawn" {
		t.Errorf("request body = %+v", received)
	}
}

func TestHTTPClient_Generate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{"server error", http.StatusInternalServerError, "boom", true},
		{"rate limited", http.StatusTooManyRequests, "slow down", true},
		{"bad request", http.StatusBadRequest, "bad prompt", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewHTTPClient(server.URL, "", testLogger())
			_, err := client.Generate(context.Background(), Request{Kind: timeline.KindMusic, Prompt: "calm"})

			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("error = %v, want *RequestError", err)
			}
			if reqErr.StatusCode != tt.status || reqErr.Body != tt.body {
				t.Errorf("RequestError = %+v", reqErr)
			}
			if reqErr.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", reqErr.IsRetryable(), tt.retryable)
			}
		})
	}
}

func TestHTTPClient_Generate_MissingURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"duration": 3}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", testLogger())
	if _, err := client.Generate(context.Background(), Request{Kind: timeline.KindVoiceover, Prompt: "hello"}); err == nil {
		t.Error("expected error for response without url")
	}
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"video", Request{Kind: timeline.KindVideo, Prompt: "p", Scene: 1}, false},
		{"music", Request{Kind: timeline.KindMusic, Prompt: "p"}, false},
		{"video without scene", Request{Kind: timeline.KindVideo, Prompt: "p"}, true},
		{"empty prompt", Request{Kind: timeline.KindMusic}, true},
		{"unknown kind", Request{Kind: "sfx", Prompt: "p"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStubClient(t *testing.T) {
	_, err := NewStubClient(testLogger()).Generate(context.Background(), Request{Kind: timeline.KindMusic, Prompt: "p"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}
