package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Rrens/chatvault/internal/config"
	"github.com/Rrens/chatvault/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncFixture struct {
	store  *memStore
	repo   *ConversationService
	creds  *Credentials
	remote *fakeRemote
	coord  *SyncCoordinator
}

func newSyncFixture(t *testing.T, timeout time.Duration) *syncFixture {
	t.Helper()
	ctx := context.Background()

	store := newMemStore()
	repo := NewConversationService(ctx, store)
	creds := NewCredentials(ctx, store)
	remote := &fakeRemote{}
	coord := NewSyncCoordinator(repo, remote, creds, store, config.SyncConfig{RemoteTimeout: timeout})
	repo.SetPusher(coord)

	t.Cleanup(coord.stop)
	return &syncFixture{store: store, repo: repo, creds: creds, remote: remote, coord: coord}
}

func (f *syncFixture) signIn(t *testing.T) {
	t.Helper()
	_, err := f.creds.Set(context.Background(), "bearer-token")
	require.NoError(t, err)
}

func TestSyncCoordinator_NoTokenNoPush(t *testing.T) {
	f := newSyncFixture(t, time.Second)

	_, err := f.repo.Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.coord.Flush(context.Background()))

	assert.Zero(t, f.remote.saveCount())
	assert.Equal(t, SyncIdle, f.coord.Status())
}

func TestSyncCoordinator_PushAfterMutation(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, time.Second)
	f.signIn(t)

	c, err := f.repo.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, f.coord.Flush(ctx))

	assert.Equal(t, 1, f.remote.saveCount())
	snap := f.remote.latest()
	require.NotNil(t, snap)
	assert.Equal(t, c.ID, snap.Conversations[0].ID)
	assert.Equal(t, domain.SnapshotFormatVersion, snap.FormatVersion)

	st := f.coord.State()
	assert.Equal(t, SyncOnline, st.Status)
	assert.NotNil(t, st.LastSyncedAt)
}

func TestSyncCoordinator_CoalescesPushes(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, 5*time.Second)
	f.signIn(t)

	gate := make(chan struct{})
	f.remote.gate = gate
	f.remote.started = make(chan struct{}, 10)

	_, err := f.repo.Create(ctx)
	require.NoError(t, err)
	<-f.remote.started

	for i := 0; i < 5; i++ {
		_, err := f.repo.Create(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, SyncSyncing, f.coord.Status())

	close(gate)
	require.NoError(t, f.coord.Flush(ctx))

	assert.Equal(t, 2, f.remote.saveCount())
	assert.Len(t, f.remote.latest().Conversations, 6, "follow-up carries the latest state")
}

func TestSyncCoordinator_SignOutWaitsForPush(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, 5*time.Second)
	f.signIn(t)

	gate := make(chan struct{})
	f.remote.gate = gate
	f.remote.started = make(chan struct{}, 10)

	c, err := f.repo.Create(ctx)
	require.NoError(t, err)
	<-f.remote.started

	done := make(chan error, 1)
	go func() { done <- f.coord.SignOut(ctx) }()

	select {
	case <-done:
		t.Fatal("sign-out returned while a push was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	require.NoError(t, <-done)

	snap := f.remote.latest()
	require.NotNil(t, snap)
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, c.ID, snap.Conversations[0].ID)

	assert.Nil(t, f.store.saved())
	token, _ := f.store.BearerToken(ctx)
	assert.Empty(t, token)
	assert.Empty(t, f.repo.List().Conversations)
	assert.Equal(t, SyncIdle, f.coord.Status())
	_, ok := f.creds.BearerToken()
	assert.False(t, ok)
}

func TestSyncCoordinator_PullWithoutBackupSeedsRemote(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, time.Second)

	for i := 0; i < 2; i++ {
		_, err := f.repo.Create(ctx)
		require.NoError(t, err)
	}
	before := f.repo.List()
	f.signIn(t)

	require.NoError(t, f.coord.Pull(ctx))

	assert.Equal(t, before, f.repo.List())
	assert.Equal(t, 1, f.remote.saveCount())
	assert.Len(t, f.remote.latest().Conversations, 2)
	assert.Equal(t, SyncOnline, f.coord.Status())
}

func TestSyncCoordinator_PullCorruptBackupKeepsLocal(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, time.Second)

	_, err := f.repo.Create(ctx)
	require.NoError(t, err)
	before := f.repo.List()

	f.remote.loadErr = fmt.Errorf("%w: unexpected end of JSON input", domain.ErrStorageCorrupt)
	f.signIn(t)

	require.NoError(t, f.coord.Pull(ctx))
	assert.Equal(t, before, f.repo.List())
	assert.Equal(t, 1, f.remote.saveCount())
}

func TestSyncCoordinator_PullReplacesLocal(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, time.Second)

	_, err := f.repo.Create(ctx)
	require.NoError(t, err)

	remoteID := "remote-1"
	f.remote.snap = domain.NewSnapshot(&domain.ConversationSet{
		Conversations: []domain.Conversation{{ID: remoteID, Title: "From another device"}},
		ActiveID:      &remoteID,
	}, time.Now())
	f.signIn(t)

	require.NoError(t, f.coord.Pull(ctx))

	got := f.repo.List()
	require.Len(t, got.Conversations, 1)
	assert.Equal(t, remoteID, got.Conversations[0].ID)
	assert.Equal(t, got, f.store.saved())
	assert.Zero(t, f.remote.saveCount(), "a restore is not pushed back")
	assert.Equal(t, SyncOnline, f.coord.Status())
}

func TestSyncCoordinator_PullFailureLeavesLocal(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, time.Second)

	_, err := f.repo.Create(ctx)
	require.NoError(t, err)
	before := f.repo.List()

	f.remote.loadErr = fmt.Errorf("%w: 503", domain.ErrNetworkFailure)
	f.signIn(t)

	err = f.coord.Pull(ctx)
	assert.ErrorIs(t, err, domain.ErrNetworkFailure)
	assert.Equal(t, before, f.repo.List())
	assert.Zero(t, f.remote.saveCount())

	st := f.coord.State()
	assert.Equal(t, SyncError, st.Status)
	assert.Equal(t, "NetworkFailure", st.ErrorKind)
}

func TestSyncCoordinator_PushFailureKeepsLocal(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, time.Second)
	f.signIn(t)
	f.remote.saveErr = fmt.Errorf("%w: 401", domain.ErrAuthExpired)

	_, err := f.repo.Create(ctx)
	require.NoError(t, err, "remote failures never fail local mutations")

	err = f.coord.Push(ctx)
	assert.ErrorIs(t, err, domain.ErrAuthExpired)
	assert.Equal(t, SyncError, f.coord.Status())
	assert.Len(t, f.store.saved().Conversations, 1)
}

func TestSyncCoordinator_RemoteTimeout(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, 20*time.Millisecond)
	f.signIn(t)
	f.remote.gate = make(chan struct{})

	err := f.coord.Push(ctx)
	assert.ErrorIs(t, err, domain.ErrNetworkFailure)
	assert.Equal(t, SyncError, f.coord.Status())
}

func TestSyncCoordinator_PushWithoutToken(t *testing.T) {
	f := newSyncFixture(t, time.Second)
	err := f.coord.Push(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthExpired)
}

func TestSyncCoordinator_SignOutRejectsConcurrentMutation(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, time.Second)
	f.signIn(t)

	_, err := f.repo.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, f.coord.Flush(ctx))

	created := make(chan error, 1)
	f.store.onClear = func() {
		go func() {
			_, err := f.repo.Create(ctx)
			created <- err
		}()
		// give the mutation a chance to contend for the repository
		time.Sleep(20 * time.Millisecond)
	}

	require.NoError(t, f.coord.SignOut(ctx))

	assert.ErrorIs(t, <-created, domain.ErrNoSession)
	assert.Nil(t, f.store.saved(), "cleared data must not come back")
	assert.Empty(t, f.repo.List().Conversations)
}

func TestSyncCoordinator_PullWaitsForRunningPush(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, 5*time.Second)
	f.signIn(t)

	remoteID := "remote-1"
	f.remote.snap = domain.NewSnapshot(&domain.ConversationSet{
		Conversations: []domain.Conversation{{ID: remoteID, Title: "From another device"}},
		ActiveID:      &remoteID,
	}, time.Now())

	gate := make(chan struct{})
	f.remote.gate = gate
	f.remote.started = make(chan struct{}, 10)

	local, err := f.repo.Create(ctx)
	require.NoError(t, err)
	<-f.remote.started

	done := make(chan error, 1)
	go func() { done <- f.coord.Pull(ctx) }()

	select {
	case <-done:
		t.Fatal("pull returned while a push was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	require.NoError(t, <-done)
	require.NoError(t, f.coord.Flush(ctx))

	got := f.repo.List()
	remote := f.remote.latest()
	require.Len(t, got.Conversations, 1)
	require.Len(t, remote.Conversations, 1)
	assert.Equal(t, local.ID, got.Conversations[0].ID)
	assert.Equal(t, remote.Conversations[0].ID, got.Conversations[0].ID, "local and remote agree")
	assert.Equal(t, SyncOnline, f.coord.Status())
}

func TestSyncCoordinator_PushAfterFailedSignOut(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, time.Second)
	f.signIn(t)
	f.store.failClear = errBoom

	err := f.coord.SignOut(ctx)
	assert.ErrorIs(t, err, errBoom)

	_, err = f.repo.Create(ctx)
	require.NoError(t, err, "local data stays usable after a failed clear")

	err = f.coord.Push(ctx)
	assert.ErrorIs(t, err, domain.ErrNoSession)
	assert.NotNil(t, f.store.saved())
}
