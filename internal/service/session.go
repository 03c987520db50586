package service

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Rrens/chatvault/internal/backup"
	"github.com/Rrens/chatvault/internal/config"
	"github.com/Rrens/chatvault/internal/domain"
	"github.com/rs/zerolog/log"
)

// BackupFactory builds the remote backup client of one session. Returning a
// nil store disables backups for it.
type BackupFactory func(ctx context.Context, subject string, creds *Credentials, store domain.LocalStore) (backup.Store, error)

// Session is the state of one signed-in profile
type Session struct {
	Subject       string
	Conversations *ConversationService
	Credentials   *Credentials
	Sync          *SyncCoordinator

	store  domain.LocalStore
	remote backup.Store
}

// Profile returns the stored profile of the session owner
func (s *Session) Profile(ctx context.Context) (*domain.Profile, error) {
	return s.store.Profile(ctx)
}

// SetBearerToken installs a new access token. Acquiring a token where there
// was none restores the remote backup.
func (s *Session) SetBearerToken(ctx context.Context, token string) (CredentialChange, error) {
	return s.Credentials.Set(ctx, token)
}

func (s *Session) close() {
	if c, ok := s.remote.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Str("subject", s.Subject).Msg("Failed to close backup client")
		}
	}
}

// SessionManager keeps one live Session per profile
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	provider domain.LocalStoreProvider
	backups  BackupFactory
	syncCfg  config.SyncConfig
}

// NewSessionManager creates a manager over the local store provider
func NewSessionManager(provider domain.LocalStoreProvider, backups BackupFactory, syncCfg config.SyncConfig) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		provider: provider,
		backups:  backups,
		syncCfg:  syncCfg,
	}
}

// Open returns the session of profile, creating it and storing the profile
func (m *SessionManager) Open(ctx context.Context, profile domain.Profile) (*Session, error) {
	store := m.provider.Store(profile.Subject)
	if err := store.SetProfile(ctx, &profile); err != nil {
		return nil, fmt.Errorf("%w: failed to store profile: %v", domain.ErrLocalPersistence, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[profile.Subject]; ok {
		return s, nil
	}
	s, err := m.build(ctx, profile.Subject, store)
	if err != nil {
		return nil, err
	}
	m.sessions[profile.Subject] = s
	return s, nil
}

// Get returns the live session of subject, restoring it from local storage
// after a restart. A profile without stored sign-in data has no session.
func (m *SessionManager) Get(ctx context.Context, subject string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[subject]; ok {
		return s, nil
	}

	store := m.provider.Store(subject)
	profile, err := store.Profile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		return nil, domain.ErrNoSession
	}

	s, err := m.build(ctx, subject, store)
	if err != nil {
		return nil, err
	}
	m.sessions[subject] = s
	return s, nil
}

// Live returns the sessions currently held in memory
func (m *SessionManager) Live() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// SignOut flushes and clears the session of subject
func (m *SessionManager) SignOut(ctx context.Context, subject string) error {
	s, err := m.Get(ctx, subject)
	if err != nil {
		return err
	}
	if err := s.Sync.SignOut(ctx); err != nil {
		return err
	}
	m.drop(s)
	return nil
}

// Teardown clears the session of subject without a final push. Profiles
// without a live session only have their local data removed.
func (m *SessionManager) Teardown(ctx context.Context, subject string) error {
	m.mu.Lock()
	s, ok := m.sessions[subject]
	m.mu.Unlock()

	if !ok {
		return m.provider.Store(subject).Clear(ctx)
	}
	if err := s.Sync.Teardown(ctx); err != nil {
		return err
	}
	m.drop(s)
	return nil
}

// FlushAll waits for every live session's pending backups
func (m *SessionManager) FlushAll(ctx context.Context) error {
	for _, s := range m.Live() {
		if err := s.Sync.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every live session without clearing data
func (m *SessionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for subject, s := range m.sessions {
		s.Sync.stop()
		s.close()
		delete(m.sessions, subject)
	}
}

func (m *SessionManager) drop(s *Session) {
	m.mu.Lock()
	if cur, ok := m.sessions[s.Subject]; ok && cur == s {
		delete(m.sessions, s.Subject)
	}
	m.mu.Unlock()
	s.close()
}

func (m *SessionManager) build(ctx context.Context, subject string, store domain.LocalStore) (*Session, error) {
	creds := NewCredentials(ctx, store)
	repo := NewConversationService(ctx, store)

	var remote backup.Store
	if m.backups != nil {
		var err error
		remote, err = m.backups(ctx, subject, creds, store)
		if err != nil {
			return nil, fmt.Errorf("failed to create backup client: %w", err)
		}
	}

	coord := NewSyncCoordinator(repo, remote, creds, store, m.syncCfg)
	repo.SetPusher(coord)

	creds.OnChange(func(ctx context.Context, change CredentialChange) {
		if !change.Acquired() {
			return
		}
		if err := coord.Pull(ctx); err != nil {
			log.Warn().Err(err).
				Str("kind", domain.ErrorKind(err)).
				Str("subject", subject).
				Msg("Restore on sign-in failed")
		}
	})

	return &Session{
		Subject:       subject,
		Conversations: repo,
		Credentials:   creds,
		Sync:          coord,
		store:         store,
		remote:        remote,
	}, nil
}
