package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Rrens/chatvault/internal/domain"
	"github.com/google/uuid"
)

// Pusher schedules a backup of the latest state
type Pusher interface {
	RequestPush()
}

// ConversationService owns one profile's Conversation Set. Every mutation is
// serialized and saved locally before it returns; the in-memory state only
// changes when the save succeeds.
type ConversationService struct {
	mu    sync.Mutex
	store domain.LocalStore
	set   *domain.ConversationSet
	// closed is set once the profile's data was cleared; later mutations fail
	closed bool

	pusher Pusher

	subMu       sync.RWMutex
	nextSub     int
	subscribers map[int]func(domain.ConversationSet)

	now   func() time.Time
	newID func() string
}

// NewConversationService restores the set saved in store
func NewConversationService(ctx context.Context, store domain.LocalStore) *ConversationService {
	return &ConversationService{
		store:       store,
		set:         store.LoadSet(ctx),
		subscribers: make(map[int]func(domain.ConversationSet)),
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// SetPusher wires the backup trigger called after pushable mutations
func (s *ConversationService) SetPusher(p Pusher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pusher = p
}

// Subscribe registers fn to receive the set after every committed mutation
func (s *ConversationService) Subscribe(fn func(domain.ConversationSet)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}

// List returns a copy of the Conversation Set
func (s *ConversationService) List() *domain.ConversationSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Clone()
}

// Snapshot captures the current set for a backup
func (s *ConversationService) Snapshot() *domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.NewSnapshot(s.set, s.now())
}

// Active returns a copy of the active conversation or nil
func (s *ConversationService) Active() *domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.set.Active()
	if c == nil {
		return nil
	}
	out := c.Clone()
	return &out
}

// Get returns a copy of the conversation with id
func (s *ConversationService) Get(id string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.set.Find(id)
	if c == nil {
		return nil, domain.ErrConversationNotFound
	}
	out := c.Clone()
	return &out, nil
}

// Create inserts an empty conversation at the front and makes it active
func (s *ConversationService) Create(ctx context.Context) (*domain.Conversation, error) {
	var created domain.Conversation
	err := s.mutate(ctx, true, func(set *domain.ConversationSet) (bool, error) {
		now := s.now().UTC()
		created = domain.Conversation{
			ID:        s.newID(),
			Title:     domain.DefaultTitle,
			Messages:  []domain.Message{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		set.Conversations = append([]domain.Conversation{created}, set.Conversations...)
		id := created.ID
		set.ActiveID = &id
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Rename sets a conversation title. An unknown id is a no-op reported as false.
func (s *ConversationService) Rename(ctx context.Context, id, title string) (bool, error) {
	title = strings.TrimSpace(title)
	found := false
	err := s.mutate(ctx, true, func(set *domain.ConversationSet) (bool, error) {
		c := set.Find(id)
		if c == nil {
			return false, nil
		}
		found = true
		c.Title = title
		c.UpdatedAt = s.now().UTC()
		return true, nil
	})
	return found, err
}

// Delete removes a conversation. When it was active, the new first
// conversation becomes active, or none when the set is empty.
func (s *ConversationService) Delete(ctx context.Context, id string) (bool, error) {
	found := false
	err := s.mutate(ctx, true, func(set *domain.ConversationSet) (bool, error) {
		i := set.IndexOf(id)
		if i < 0 {
			return false, nil
		}
		found = true
		set.Conversations = append(set.Conversations[:i], set.Conversations[i+1:]...)
		if set.ActiveID != nil && *set.ActiveID == id {
			set.ActiveID = nil
			if len(set.Conversations) > 0 {
				first := set.Conversations[0].ID
				set.ActiveID = &first
			}
		}
		return true, nil
	})
	return found, err
}

// AppendMessage adds a message to a conversation. The first message titles
// the conversation when it is a user message and the title is untouched.
func (s *ConversationService) AppendMessage(ctx context.Context, id string, msg domain.Message) (*domain.Conversation, error) {
	if !msg.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidRole, msg.Role)
	}

	var updated domain.Conversation
	err := s.mutate(ctx, true, func(set *domain.ConversationSet) (bool, error) {
		c := set.Find(id)
		if c == nil {
			return false, domain.ErrConversationNotFound
		}
		if len(c.Messages) == 0 && c.Title == domain.DefaultTitle && msg.Role == domain.RoleUser {
			c.Title = domain.DeriveTitle([]domain.Message{msg})
		}
		c.Messages = append(c.Messages, msg)
		c.UpdatedAt = s.now().UTC()
		updated = c.Clone()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Select makes id the active conversation. It is saved locally but not
// backed up on its own.
func (s *ConversationService) Select(ctx context.Context, id string) error {
	return s.mutate(ctx, false, func(set *domain.ConversationSet) (bool, error) {
		if set.IndexOf(id) < 0 {
			return false, domain.ErrConversationNotFound
		}
		if set.ActiveID != nil && *set.ActiveID == id {
			return false, nil
		}
		set.ActiveID = &id
		return true, nil
	})
}

// ClearActive switches to the unsaved draft state
func (s *ConversationService) ClearActive(ctx context.Context) error {
	return s.mutate(ctx, false, func(set *domain.ConversationSet) (bool, error) {
		if set.ActiveID == nil {
			return false, nil
		}
		set.ActiveID = nil
		return true, nil
	})
}

// Replace swaps in a whole set, as restored from a backup
func (s *ConversationService) Replace(ctx context.Context, next *domain.ConversationSet) error {
	return s.mutate(ctx, false, func(set *domain.ConversationSet) (bool, error) {
		repl := next.Clone()
		repl.Normalize()
		*set = *repl
		return true, nil
	})
}

// clearWith runs wipe and empties the in-memory set as one step, then
// rejects further mutations. Nothing is changed when wipe fails.
func (s *ConversationService) clearWith(wipe func() error) error {
	s.mu.Lock()
	if err := wipe(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.set = domain.NewConversationSet()
	s.closed = true
	view := s.set.Clone()
	s.mu.Unlock()
	s.notify(view)
	return nil
}

// mutate applies fn to a copy of the set, saves it and commits it. fn reports
// whether anything changed; unchanged sets are neither saved nor pushed.
func (s *ConversationService) mutate(ctx context.Context, push bool, fn func(set *domain.ConversationSet) (bool, error)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: signed out", domain.ErrNoSession)
	}
	next := s.set.Clone()
	changed, err := fn(next)
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}
	if err := s.store.SaveSet(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.set = next
	view := next.Clone()
	pusher := s.pusher
	s.mu.Unlock()

	s.notify(view)
	if push && pusher != nil {
		pusher.RequestPush()
	}
	return nil
}

func (s *ConversationService) notify(set *domain.ConversationSet) {
	s.subMu.RLock()
	subs := make([]func(domain.ConversationSet), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range subs {
		fn(*set.Clone())
	}
}
