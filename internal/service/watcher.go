package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// LogoutWatcher is the polling fallback for sign-outs that bypass the event
// bus: a live session whose stored profile vanished while conversation data
// is still present gets torn down.
type LogoutWatcher struct {
	sessions *SessionManager
	interval time.Duration
}

// NewLogoutWatcher creates a watcher; a non-positive interval disables it
func NewLogoutWatcher(sessions *SessionManager, interval time.Duration) *LogoutWatcher {
	return &LogoutWatcher{sessions: sessions, interval: interval}
}

// Run polls until ctx is cancelled
func (w *LogoutWatcher) Run(ctx context.Context) {
	if w.interval <= 0 {
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check runs one polling pass
func (w *LogoutWatcher) Check(ctx context.Context) {
	for _, s := range w.sessions.Live() {
		profile, err := s.store.Profile(ctx)
		if err != nil || profile != nil {
			continue
		}
		hasData, err := s.store.HasSet(ctx)
		if err != nil || !hasData {
			continue
		}

		log.Info().Str("subject", s.Subject).Msg("Detected sign-out by polling, cleaning up local data")
		if err := w.sessions.Teardown(ctx, s.Subject); err != nil {
			log.Error().Err(err).Str("subject", s.Subject).Msg("Failed to clean up signed out session")
		}
	}
}
