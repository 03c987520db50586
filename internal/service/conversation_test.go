package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Rrens/chatvault/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPusher struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPusher) RequestPush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
}

func (p *countingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestRepo(t *testing.T) (*ConversationService, *memStore, *countingPusher) {
	t.Helper()
	store := newMemStore()
	repo := NewConversationService(context.Background(), store)
	seq := 0
	repo.newID = func() string {
		seq++
		return fmt.Sprintf("conv-%d", seq)
	}
	pusher := &countingPusher{}
	repo.SetPusher(pusher)
	return repo, store, pusher
}

func TestConversationService_PersistsEveryMutation(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newTestRepo(t)

	steps := []func() error{
		func() error { _, err := repo.Create(ctx); return err },
		func() error { _, err := repo.Create(ctx); return err },
		func() error { _, err := repo.Rename(ctx, "conv-1", "Renamed"); return err },
		func() error {
			_, err := repo.AppendMessage(ctx, "conv-2", domain.Message{Role: domain.RoleUser, Content: "hi"})
			return err
		},
		func() error { _, err := repo.Create(ctx); return err },
		func() error { _, err := repo.Delete(ctx, "conv-2"); return err },
		func() error { _, err := repo.Delete(ctx, "conv-3"); return err },
	}

	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		assert.Equal(t, repo.List(), store.saved(), "step %d", i)
		// a fresh repository over the same store sees the same set
		assert.Equal(t, repo.List(), NewConversationService(ctx, store).List(), "step %d", i)
	}
}

func TestConversationService_Create(t *testing.T) {
	ctx := context.Background()
	repo, _, pusher := newTestRepo(t)

	first, err := repo.Create(ctx)
	require.NoError(t, err)
	second, err := repo.Create(ctx)
	require.NoError(t, err)

	set := repo.List()
	require.Len(t, set.Conversations, 2)
	assert.Equal(t, second.ID, set.Conversations[0].ID, "newest first")
	assert.Equal(t, first.ID, set.Conversations[1].ID)
	assert.Equal(t, domain.DefaultTitle, second.Title)
	assert.Empty(t, second.Messages)
	require.NotNil(t, set.ActiveID)
	assert.Equal(t, second.ID, *set.ActiveID)
	assert.Equal(t, 2, pusher.count())
}

func TestConversationService_DeleteActiveFallback(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newTestRepo(t)

	for i := 0; i < 3; i++ {
		_, err := repo.Create(ctx)
		require.NoError(t, err)
	}
	// order: conv-3, conv-2, conv-1; active conv-3
	require.NoError(t, repo.Select(ctx, "conv-2"))

	found, err := repo.Delete(ctx, "conv-2")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "conv-3", repo.Active().ID)

	// deleting an inactive conversation keeps the selection
	_, err = repo.Delete(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-3", repo.Active().ID)

	_, err = repo.Delete(ctx, "conv-3")
	require.NoError(t, err)
	assert.Nil(t, repo.Active())
	assert.Nil(t, repo.List().ActiveID)
}

func TestConversationService_UnknownIDs(t *testing.T) {
	ctx := context.Background()
	repo, store, pusher := newTestRepo(t)

	found, err := repo.Rename(ctx, "missing", "x")
	require.NoError(t, err)
	assert.False(t, found)

	found, err = repo.Delete(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = repo.AppendMessage(ctx, "missing", domain.Message{Role: domain.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	assert.ErrorIs(t, repo.Select(ctx, "missing"), domain.ErrConversationNotFound)

	assert.Zero(t, store.saves)
	assert.Zero(t, pusher.count())
}

func TestConversationService_AutoTitle(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"short", "Hello there", "Hello there"},
		{"exactly thirty", strings.Repeat("a", 30), strings.Repeat("a", 30)},
		{"long", "This message is definitely longer than thirty characters", "This message is definitely lon..."},
		{"multibyte", strings.Repeat("é", 35), strings.Repeat("é", 30) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, _, _ := newTestRepo(t)
			c, err := repo.Create(ctx)
			require.NoError(t, err)

			got, err := repo.AppendMessage(ctx, c.ID, domain.Message{Role: domain.RoleUser, Content: tt.content})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Title)
		})
	}
}

func TestConversationService_TitleDerivedOnce(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newTestRepo(t)
	c, err := repo.Create(ctx)
	require.NoError(t, err)

	_, err = repo.AppendMessage(ctx, c.ID, domain.Message{Role: domain.RoleUser, Content: "First question"})
	require.NoError(t, err)
	_, err = repo.AppendMessage(ctx, c.ID, domain.Message{Role: domain.RoleAssistant, Content: "Answer"})
	require.NoError(t, err)
	got, err := repo.AppendMessage(ctx, c.ID, domain.Message{Role: domain.RoleUser, Content: "Second question"})
	require.NoError(t, err)
	assert.Equal(t, "First question", got.Title)

	_, err = repo.Rename(ctx, c.ID, "  Custom  ")
	require.NoError(t, err)
	got, err = repo.AppendMessage(ctx, c.ID, domain.Message{Role: domain.RoleUser, Content: "Third"})
	require.NoError(t, err)
	assert.Equal(t, "Custom", got.Title)
	assert.Len(t, got.Messages, 4)
}

func TestConversationService_AssistantFirstKeepsDefaultTitle(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newTestRepo(t)
	c, err := repo.Create(ctx)
	require.NoError(t, err)

	got, err := repo.AppendMessage(ctx, c.ID, domain.Message{Role: domain.RoleAssistant, Content: "Welcome!"})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultTitle, got.Title)
}

func TestConversationService_InvalidRole(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newTestRepo(t)
	c, err := repo.Create(ctx)
	require.NoError(t, err)

	_, err = repo.AppendMessage(ctx, c.ID, domain.Message{Role: "system", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestConversationService_SelectionIsNotPushed(t *testing.T) {
	ctx := context.Background()
	repo, store, pusher := newTestRepo(t)

	_, err := repo.Create(ctx)
	require.NoError(t, err)
	_, err = repo.Create(ctx)
	require.NoError(t, err)
	pushes, saves := pusher.count(), store.saves

	require.NoError(t, repo.Select(ctx, "conv-1"))
	assert.Equal(t, "conv-1", *store.saved().ActiveID)

	require.NoError(t, repo.ClearActive(ctx))
	assert.Nil(t, store.saved().ActiveID)
	assert.Nil(t, repo.Active())

	assert.Equal(t, pushes, pusher.count())
	assert.Equal(t, saves+2, store.saves)
}

func TestConversationService_FailedSaveRollsBack(t *testing.T) {
	ctx := context.Background()
	repo, store, pusher := newTestRepo(t)

	_, err := repo.Create(ctx)
	require.NoError(t, err)
	before := repo.List()

	store.failSave = true
	_, err = repo.Create(ctx)
	assert.ErrorIs(t, err, domain.ErrLocalPersistence)
	_, err = repo.Rename(ctx, "conv-1", "nope")
	assert.ErrorIs(t, err, domain.ErrLocalPersistence)

	assert.Equal(t, before, repo.List())
	assert.Equal(t, 1, pusher.count())
}

func TestConversationService_Subscribe(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newTestRepo(t)

	var seen []int
	unsubscribe := repo.Subscribe(func(set domain.ConversationSet) {
		seen = append(seen, len(set.Conversations))
	})

	_, err := repo.Create(ctx)
	require.NoError(t, err)
	_, err = repo.Create(ctx)
	require.NoError(t, err)
	unsubscribe()
	_, err = repo.Create(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, seen)
}

func TestConversationService_Replace(t *testing.T) {
	ctx := context.Background()
	repo, store, pusher := newTestRepo(t)
	_, err := repo.Create(ctx)
	require.NoError(t, err)
	pushes := pusher.count()

	missing := "gone"
	next := &domain.ConversationSet{
		Conversations: []domain.Conversation{{ID: "remote-1", Title: "From backup"}},
		ActiveID:      &missing,
	}
	require.NoError(t, repo.Replace(ctx, next))

	got := repo.List()
	require.Len(t, got.Conversations, 1)
	assert.Equal(t, "remote-1", got.Conversations[0].ID)
	assert.NotNil(t, got.Conversations[0].Messages)
	assert.Nil(t, got.ActiveID, "dangling active id is cleared")
	assert.Equal(t, got, store.saved())
	assert.Equal(t, pushes, pusher.count())
}
