package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Rrens/chatvault/internal/backup"
	"github.com/Rrens/chatvault/internal/config"
	"github.com/Rrens/chatvault/internal/domain"
	"github.com/rs/zerolog/log"
)

// SyncStatus is the backup state shown to the user
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncOnline  SyncStatus = "online"
	SyncError   SyncStatus = "error"
)

const defaultRemoteTimeout = 10 * time.Second

var errSessionEnded = fmt.Errorf("%w: session ended", domain.ErrNoSession)

// SyncState is a point-in-time view of the coordinator
type SyncState struct {
	Status       SyncStatus `json:"status"`
	LastError    string     `json:"last_error,omitempty"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	Pushing      bool       `json:"pushing"`
}

// SyncCoordinator moves snapshots between the local set and the remote
// backup. At most one push runs at a time; requests arriving meanwhile
// collapse into a single follow-up push of the latest state.
type SyncCoordinator struct {
	repo    *ConversationService
	remote  backup.Store
	creds   *Credentials
	store   domain.LocalStore
	timeout time.Duration

	// base is cancelled on teardown to abort a running push
	base   context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	status      SyncStatus
	lastErr     error
	lastSynced  time.Time
	inFlight    bool
	pending     bool
	drained     chan struct{}
	lastPushErr error
}

// NewSyncCoordinator creates a coordinator. A nil remote disables backups.
func NewSyncCoordinator(repo *ConversationService, remote backup.Store, creds *Credentials, store domain.LocalStore, cfg config.SyncConfig) *SyncCoordinator {
	timeout := cfg.RemoteTimeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	base, cancel := context.WithCancel(context.Background())
	return &SyncCoordinator{
		repo:    repo,
		remote:  remote,
		creds:   creds,
		store:   store,
		timeout: timeout,
		base:    base,
		cancel:  cancel,
		status:  SyncIdle,
	}
}

// State returns the current status
func (c *SyncCoordinator) State() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := SyncState{Status: c.status, Pushing: c.inFlight}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
		st.ErrorKind = domain.ErrorKind(c.lastErr)
	}
	if !c.lastSynced.IsZero() {
		t := c.lastSynced
		st.LastSyncedAt = &t
	}
	return st
}

// Status returns the current status value
func (c *SyncCoordinator) Status() SyncStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *SyncCoordinator) enabled() bool {
	if c.remote == nil {
		return false
	}
	_, ok := c.creds.BearerToken()
	return ok
}

// RequestPush schedules a backup of the latest state without waiting
func (c *SyncCoordinator) RequestPush() {
	if !c.enabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.base.Err() != nil {
		return
	}
	if c.inFlight {
		c.pending = true
		return
	}
	c.inFlight = true
	c.drained = make(chan struct{})
	go c.pushLoop(c.drained)
}

func (c *SyncCoordinator) pushLoop(drained chan struct{}) {
	for {
		err := c.pushOnce()

		c.mu.Lock()
		c.lastPushErr = err
		if !c.pending || c.base.Err() != nil {
			c.pending = false
			c.inFlight = false
			close(drained)
			c.mu.Unlock()
			return
		}
		c.pending = false
		c.mu.Unlock()
	}
}

func (c *SyncCoordinator) pushOnce() error {
	c.setStatus(SyncSyncing, nil)

	snap := c.repo.Snapshot()
	ctx, cancel := context.WithTimeout(c.base, c.timeout)
	defer cancel()

	start := time.Now()
	if err := c.remote.Save(ctx, snap); err != nil {
		err = backup.Classify(err)
		c.setStatus(SyncError, err)
		log.Warn().Err(err).
			Str("kind", domain.ErrorKind(err)).
			Msg("Backup push failed, local data remains authoritative")
		return err
	}

	c.markSynced()
	log.Debug().
		Int("conversations", len(snap.Conversations)).
		Dur("duration", time.Since(start)).
		Msg("Backup pushed")
	return nil
}

// Flush waits until no push is running or pending. It only fails when ctx ends.
func (c *SyncCoordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	if !c.inFlight {
		c.mu.Unlock()
		return nil
	}
	drained := c.drained
	c.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Push backs up the latest state and waits for the result
func (c *SyncCoordinator) Push(ctx context.Context) error {
	if c.remote == nil {
		return fmt.Errorf("%w: remote backup disabled", domain.ErrNetworkFailure)
	}
	if _, ok := c.creds.BearerToken(); !ok {
		return fmt.Errorf("%w: no bearer token", domain.ErrAuthExpired)
	}
	if c.base.Err() != nil {
		return errSessionEnded
	}

	c.RequestPush()
	if err := c.Flush(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPushErr
}

// Pull restores the remote snapshot, replacing local state. Without a usable
// remote snapshot the local state is kept and pushed once to seed the backup.
// It holds the push slot, so a running push finishes first and pushes
// requested meanwhile run after the restore.
func (c *SyncCoordinator) Pull(ctx context.Context) error {
	if !c.enabled() {
		return fmt.Errorf("%w: no bearer token", domain.ErrAuthExpired)
	}
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	c.setStatus(SyncSyncing, nil)

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	snap, err := c.remote.Load(rctx)
	cancel()

	switch {
	case err == nil:
		if err := c.repo.Replace(ctx, snap.Set()); err != nil {
			c.setStatus(SyncError, err)
			return err
		}
		c.markSynced()
		log.Info().Int("conversations", len(snap.Conversations)).Msg("Restored conversations from backup")
		return nil

	case errors.Is(err, domain.ErrNoBackup), errors.Is(err, domain.ErrStorageCorrupt):
		if errors.Is(err, domain.ErrStorageCorrupt) {
			log.Warn().Err(err).
				Str("kind", domain.ErrorKind(err)).
				Msg("Remote backup is corrupt, keeping local conversations")
		} else {
			log.Info().Msg("No remote backup yet, seeding it from local conversations")
		}
		err := c.pushOnce()
		c.mu.Lock()
		c.lastPushErr = err
		c.mu.Unlock()
		return err

	default:
		err = backup.Classify(err)
		c.setStatus(SyncError, err)
		log.Warn().Err(err).
			Str("kind", domain.ErrorKind(err)).
			Msg("Backup pull failed, local data left untouched")
		return err
	}
}

// acquire takes the single push slot, waiting for a running push to drain
func (c *SyncCoordinator) acquire(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.base.Err() != nil {
			c.mu.Unlock()
			return errSessionEnded
		}
		if !c.inFlight {
			c.inFlight = true
			c.drained = make(chan struct{})
			c.mu.Unlock()
			return nil
		}
		drained := c.drained
		c.mu.Unlock()

		select {
		case <-drained:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// release gives the slot back, starting the push requested while it was held
func (c *SyncCoordinator) release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending && c.base.Err() == nil {
		c.pending = false
		go c.pushLoop(c.drained)
		return
	}
	c.pending = false
	c.inFlight = false
	close(c.drained)
}

// SignOut waits for outstanding pushes, then clears the credentials, the
// local store and the in-memory set.
func (c *SyncCoordinator) SignOut(ctx context.Context) error {
	if err := c.Flush(ctx); err != nil {
		return fmt.Errorf("failed to finish backup before sign-out: %w", err)
	}
	c.stop()
	c.waitIdle()

	if err := c.repo.clearWith(func() error { return c.store.Clear(ctx) }); err != nil {
		return err
	}
	c.creds.forget()
	c.setStatus(SyncIdle, nil)
	return nil
}

// Teardown ends the session after another instance signed it out. Running
// pushes are aborted since that instance already flushed.
func (c *SyncCoordinator) Teardown(ctx context.Context) error {
	c.stop()
	c.creds.forget()
	c.waitIdle()

	if err := c.repo.clearWith(func() error { return c.store.Clear(ctx) }); err != nil {
		return err
	}
	c.setStatus(SyncIdle, nil)
	return nil
}

// waitIdle blocks until a push aborted by stop has returned
func (c *SyncCoordinator) waitIdle() {
	c.mu.Lock()
	drained, inFlight := c.drained, c.inFlight
	c.mu.Unlock()
	if inFlight {
		<-drained
	}
}

func (c *SyncCoordinator) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel()
}

func (c *SyncCoordinator) setStatus(status SyncStatus, err error) {
	c.mu.Lock()
	prev := c.status
	c.status = status
	c.lastErr = err
	c.mu.Unlock()

	if prev != status {
		log.Debug().Str("from", string(prev)).Str("to", string(status)).Msg("Backup status changed")
	}
}

func (c *SyncCoordinator) markSynced() {
	c.mu.Lock()
	c.lastSynced = time.Now().UTC()
	c.mu.Unlock()
	c.setStatus(SyncOnline, nil)
}
