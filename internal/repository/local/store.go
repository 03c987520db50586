package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Rrens/chatvault/internal/domain"
	"github.com/rs/zerolog/log"
)

// Storage keys inside a profile namespace
const (
	KeyConversations = "ai_chats_data"
	KeyBearerToken   = "google_access_token"
	KeyContainerID   = "google_drive_ai_folder_id"
	KeyProfile       = "profile"
)

// Backend is a namespaced byte store
type Backend interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Put(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
	DeleteNamespace(ctx context.Context, namespace string) error
	Namespaces(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Sealer encrypts values that must not be stored in clear text
type Sealer interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Provider implements domain.LocalStoreProvider on top of a Backend
type Provider struct {
	backend Backend
	sealer  Sealer
}

// NewProvider creates a store provider. A nil sealer stores tokens unencrypted.
func NewProvider(backend Backend, sealer Sealer) *Provider {
	return &Provider{backend: backend, sealer: sealer}
}

// Store returns the store for one profile namespace
func (p *Provider) Store(namespace string) domain.LocalStore {
	return &Store{backend: p.backend, sealer: p.sealer, namespace: namespace}
}

// Namespaces lists profiles with stored data
func (p *Provider) Namespaces(ctx context.Context) ([]string, error) {
	return p.backend.Namespaces(ctx)
}

// Ping verifies the backend is usable
func (p *Provider) Ping(ctx context.Context) error {
	return p.backend.Ping(ctx)
}

// Close closes the backend
func (p *Provider) Close() error {
	return p.backend.Close()
}

// Store implements domain.LocalStore for a single namespace
type Store struct {
	backend   Backend
	sealer    Sealer
	namespace string
}

type storedSet struct {
	Conversations []domain.Conversation `json:"conversations"`
	ActiveID      *string               `json:"activeId"`
}

func (s *Store) SaveSet(ctx context.Context, set *domain.ConversationSet) error {
	data, err := json.Marshal(storedSet{Conversations: set.Conversations, ActiveID: set.ActiveID})
	if err != nil {
		return fmt.Errorf("%w: failed to marshal conversations: %v", domain.ErrLocalPersistence, err)
	}
	if err := s.backend.Put(ctx, s.namespace, KeyConversations, data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLocalPersistence, err)
	}
	return nil
}

func (s *Store) LoadSet(ctx context.Context) *domain.ConversationSet {
	data, ok, err := s.backend.Get(ctx, s.namespace, KeyConversations)
	if err != nil {
		log.Error().Err(err).
			Str("kind", domain.ErrorKind(domain.ErrStorageCorrupt)).
			Str("namespace", s.namespace).
			Msg("failed to read local conversations, starting empty")
		return domain.NewConversationSet()
	}
	if !ok || len(data) == 0 {
		return domain.NewConversationSet()
	}

	var stored storedSet
	if err := json.Unmarshal(data, &stored); err != nil {
		log.Warn().Err(err).
			Str("kind", domain.ErrorKind(domain.ErrStorageCorrupt)).
			Str("namespace", s.namespace).
			Msg("local conversations are corrupt, starting empty")
		return domain.NewConversationSet()
	}

	set := &domain.ConversationSet{Conversations: stored.Conversations, ActiveID: stored.ActiveID}
	set.Normalize()
	return set
}

func (s *Store) HasSet(ctx context.Context) (bool, error) {
	data, ok, err := s.backend.Get(ctx, s.namespace, KeyConversations)
	return ok && len(data) > 0, err
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.DeleteNamespace(ctx, s.namespace); err != nil {
		return fmt.Errorf("%w: failed to clear local data: %v", domain.ErrLocalPersistence, err)
	}
	return nil
}

func (s *Store) BearerToken(ctx context.Context) (string, error) {
	data, ok, err := s.backend.Get(ctx, s.namespace, KeyBearerToken)
	if err != nil || !ok {
		return "", err
	}
	if s.sealer != nil {
		data, err = s.sealer.Decrypt(data)
		if err != nil {
			return "", fmt.Errorf("%w: failed to decrypt bearer token: %v", domain.ErrStorageCorrupt, err)
		}
	}
	return string(data), nil
}

func (s *Store) SetBearerToken(ctx context.Context, token string) error {
	if token == "" {
		return s.backend.Delete(ctx, s.namespace, KeyBearerToken)
	}
	data := []byte(token)
	if s.sealer != nil {
		var err error
		data, err = s.sealer.Encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt bearer token: %w", err)
		}
	}
	return s.backend.Put(ctx, s.namespace, KeyBearerToken, data)
}

func (s *Store) ContainerID(ctx context.Context) (string, error) {
	data, _, err := s.backend.Get(ctx, s.namespace, KeyContainerID)
	return string(data), err
}

func (s *Store) SetContainerID(ctx context.Context, id string) error {
	if id == "" {
		return s.backend.Delete(ctx, s.namespace, KeyContainerID)
	}
	return s.backend.Put(ctx, s.namespace, KeyContainerID, []byte(id))
}

func (s *Store) Profile(ctx context.Context) (*domain.Profile, error) {
	data, ok, err := s.backend.Get(ctx, s.namespace, KeyProfile)
	if err != nil {
		return nil, err
	}
	if !ok || len(data) == 0 {
		return nil, nil
	}
	var p domain.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Join(domain.ErrStorageCorrupt, err)
	}
	return &p, nil
}

func (s *Store) SetProfile(ctx context.Context, p *domain.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	return s.backend.Put(ctx, s.namespace, KeyProfile, data)
}
