package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestModerationFlagged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("text") == "rude" {
			w.Write([]byte("true"))
			return
		}
		w.Write([]byte("false"))
	}))
	defer srv.Close()

	m := NewModeration(srv.URL, zerolog.Nop())
	if flagged, stale := m.Check(context.Background(), "rude"); !flagged || stale {
		t.Fatalf("expected flagged fresh result, got flagged=%v stale=%v", flagged, stale)
	}
	if flagged, _ := m.Check(context.Background(), "friendly"); flagged {
		t.Fatal("clean text should not be flagged")
	}
}

func TestModerationFailsOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	m := NewModeration(srv.URL, zerolog.Nop())
	if flagged, _ := m.Check(context.Background(), "anything"); flagged {
		t.Fatal("server error must fail open")
	}

	// Unreachable endpoint, same answer.
	srv.Close()
	if flagged, _ := m.Check(context.Background(), "anything"); flagged {
		t.Fatal("network error must fail open")
	}
}

func TestModerationLastSubmitWins(t *testing.T) {
	release := make(chan struct{})
	first := make(chan struct{})
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			close(first)
			<-release
		}
		w.Write([]byte("false"))
	}))
	defer srv.Close()

	m := NewModeration(srv.URL, zerolog.Nop())

	type result struct{ flagged, stale bool }
	firstDone := make(chan result, 1)
	go func() {
		flagged, stale := m.Check(context.Background(), "slow")
		firstDone <- result{flagged, stale}
	}()

	<-first // the first lookup is in flight
	if _, stale := m.Check(context.Background(), "fast"); stale {
		t.Fatal("the newest submit is never stale")
	}
	close(release)

	select {
	case res := <-firstDone:
		if !res.stale {
			t.Fatal("the overtaken submit should report itself stale")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first check never returned")
	}
}
