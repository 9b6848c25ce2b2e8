package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Port != 18765 {
		t.Errorf("Expected port 18765, got %d", config.Port)
	}
	if config.ReadTimeout != 10*time.Second {
		t.Errorf("Expected ReadTimeout 10s, got %v", config.ReadTimeout)
	}
	if config.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected ShutdownTimeout 5s, got %v", config.ShutdownTimeout)
	}
}

func TestStartStop(t *testing.T) {
	config := DefaultConfig()
	config.Port = 0 // Use random port
	server := New(config, nil)

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if !server.IsRunning() {
		t.Error("Expected server to be running")
	}
	if server.Port() == 0 {
		t.Error("Expected non-zero port")
	}

	// Try to start again (should fail)
	if err := server.Start(); err == nil {
		t.Error("Expected error when starting already running server")
	}

	if err := server.Stop(); err != nil {
		t.Errorf("Failed to stop server: %v", err)
	}
	if server.IsRunning() {
		t.Error("Expected server to be stopped")
	}

	// Stop again (should succeed, no-op)
	if err := server.Stop(); err != nil {
		t.Errorf("Expected no error when stopping already stopped server: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	config := DefaultConfig()
	config.Port = 0
	server := New(config, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !server.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("Expected server to start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected Run to return after cancel")
	}
}

func TestURL(t *testing.T) {
	config := DefaultConfig()
	config.Port = 12345
	server := New(config, nil)

	if server.URL() != "http://127.0.0.1:12345" {
		t.Errorf("Expected URL http://127.0.0.1:12345, got %s", server.URL())
	}
}

func TestServesRegisteredHandlers(t *testing.T) {
	config := DefaultConfig()
	config.Port = 0
	server := New(config, nil)
	server.Handle("GET /ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	}))

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	resp, err := http.Get(server.URL() + "/ping")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "pong" {
		t.Errorf("Expected 200 pong, got %d %q", resp.StatusCode, body)
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		method  string
		origin  string
		allowed bool
		status  int
	}{
		{http.MethodOptions, "http://127.0.0.1:8080", true, http.StatusOK},
		{http.MethodGet, "http://localhost:3000", true, http.StatusTeapot},
		{http.MethodGet, "http://localhost.evil.com", false, http.StatusTeapot},
		{http.MethodGet, "https://example.com", false, http.StatusTeapot},
		{http.MethodGet, "", false, http.StatusTeapot},
	}

	for _, test := range tests {
		req := httptest.NewRequest(test.method, "http://127.0.0.1:18765/api/devices", nil)
		if test.origin != "" {
			req.Header.Set("Origin", test.origin)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		got := w.Header().Get("Access-Control-Allow-Origin") != ""
		if got != test.allowed {
			t.Errorf("%s %q: allowed %v, expected %v", test.method, test.origin, got, test.allowed)
		}
		if w.Code != test.status {
			t.Errorf("%s %q: status %d, expected %d", test.method, test.origin, w.Code, test.status)
		}
	}
}

func TestMultipleStartStop(t *testing.T) {
	config := DefaultConfig()
	config.Port = 0

	for i := 0; i < 3; i++ {
		server := New(config, nil)

		if err := server.Start(); err != nil {
			t.Fatalf("Iteration %d: Failed to start server: %v", i, err)
		}
		if err := server.Stop(); err != nil {
			t.Fatalf("Iteration %d: Failed to stop server: %v", i, err)
		}
	}
}
