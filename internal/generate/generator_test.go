package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"motivbot/internal/settings"
)

func manualSnap(quotes ...string) *settings.Settings {
	return &settings.Settings{Mode: settings.ModeManual, Quotes: quotes}
}

func TestQuoteRotationIsDeterministic(t *testing.T) {
	t.Parallel()
	g := New(Config{}, zerolog.Nop())
	snap := manualSnap("one", "two")

	want := []string{"one", "two", "one", "two"}
	for i, w := range want {
		if got := g.Message(context.Background(), snap); got != w {
			t.Fatalf("call %d = %q, want %q", i, got, w)
		}
	}
}

func TestEmptyLibraryUsesBuiltinFallback(t *testing.T) {
	t.Parallel()
	g := New(Config{}, zerolog.Nop())
	if got := g.Message(context.Background(), manualSnap()); got != fallbackMessage {
		t.Fatalf("got %q, want builtin fallback", got)
	}
}

func TestAIModeWithoutCredentialUsesQuotes(t *testing.T) {
	t.Parallel()
	g := New(Config{}, zerolog.Nop())
	if g.Available() {
		t.Fatal("no credential, generator must not report available")
	}
	snap := &settings.Settings{Mode: settings.ModeAI, Quotes: []string{"q"}}
	if got := g.Message(context.Background(), snap); got != "q" {
		t.Fatalf("got %q, want quote", got)
	}
}

func TestRemoteSuccess(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  Keep shipping, team!  "}},
			},
		})
	}))
	defer srv.Close()

	g := New(Config{APIKey: "test-key", BaseURL: srv.URL}, zerolog.Nop())
	snap := &settings.Settings{Mode: settings.ModeAI, Quotes: []string{"static"}}
	if got := g.Message(context.Background(), snap); got != "Keep shipping, team!" {
		t.Fatalf("got %q", got)
	}
}

func TestRemoteFailureFallsBackToQuotes(t *testing.T) {
	t.Parallel()
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		},
		"empty choices": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
		},
		"malformed body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			g := New(Config{APIKey: "k", BaseURL: srv.URL}, zerolog.Nop())
			snap := &settings.Settings{Mode: settings.ModeAI, Quotes: []string{"Keep going"}}
			if got := g.Message(context.Background(), snap); got != "Keep going" {
				t.Fatalf("got %q, want static fallback", got)
			}
		})
	}
}

func TestRemoteTimeoutFallsBack(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	g := New(Config{APIKey: "k", BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, zerolog.Nop())
	snap := &settings.Settings{Mode: settings.ModeAI, Quotes: []string{"fallback quote"}}

	start := time.Now()
	got := g.Message(context.Background(), snap)
	if got != "fallback quote" {
		t.Fatalf("got %q", got)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not bounded, took %v", time.Since(start))
	}
}
