package client

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultModerationURL is the public Purgomalum endpoint the room-name gate
// consults.
const DefaultModerationURL = "https://www.purgomalum.com/service/containsprofanity"

// Moderation is a best-effort profanity gate over free text. It fails open:
// any network error or timeout counts as "not flagged", so the user is never
// blocked by a third-party outage.
//
// Concurrent submits follow last-submit-wins: each Check takes a fresh token,
// and a result whose token is no longer the latest reports itself stale. The
// in-flight request is never cancelled, its result is simply discarded.
type Moderation struct {
	base   string
	client *http.Client
	log    zerolog.Logger
	seq    atomic.Uint64
}

func NewModeration(base string, log zerolog.Logger) *Moderation {
	if base == "" {
		base = DefaultModerationURL
	}
	return &Moderation{
		base:   base,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log,
	}
}

// Check reports whether text is flagged, and whether the answer is stale
// (a newer Check started while this one was in flight).
func (m *Moderation) Check(ctx context.Context, text string) (flagged, stale bool) {
	token := m.seq.Add(1)
	flagged = m.lookup(ctx, text)
	return flagged, m.seq.Load() != token
}

func (m *Moderation) lookup(ctx context.Context, text string) bool {
	u := m.base + "?text=" + url.QueryEscape(text)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		m.log.Warn().Err(err).Msg("moderation request build failed, failing open")
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.log.Warn().Err(err).Msg("moderation lookup failed, failing open")
		return false
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil || resp.StatusCode/100 != 2 {
		m.log.Warn().Err(err).Int("status", resp.StatusCode).Msg("moderation lookup unusable, failing open")
		return false
	}
	return strings.TrimSpace(string(body)) == "true"
}
