package service

import (
	"context"
	"errors"
	"sync"

	"github.com/Rrens/chatvault/internal/domain"
	"github.com/Rrens/chatvault/internal/llm"
	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory domain.LocalStore
type memStore struct {
	mu        sync.Mutex
	set       *domain.ConversationSet
	token     string
	container string
	profile   *domain.Profile
	saves     int
	failSave  bool
	failClear error
	// onClear runs at the start of Clear
	onClear func()
}

func newMemStore() *memStore {
	return &memStore{}
}

func (m *memStore) SaveSet(_ context.Context, set *domain.ConversationSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return domain.ErrLocalPersistence
	}
	m.set = set.Clone()
	m.saves++
	return nil
}

func (m *memStore) LoadSet(context.Context) *domain.ConversationSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.set == nil {
		return domain.NewConversationSet()
	}
	return m.set.Clone()
}

func (m *memStore) HasSet(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set != nil, nil
}

func (m *memStore) Clear(context.Context) error {
	if m.onClear != nil {
		m.onClear()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failClear != nil {
		return m.failClear
	}
	m.set, m.token, m.container, m.profile = nil, "", "", nil
	return nil
}

func (m *memStore) BearerToken(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *memStore) SetBearerToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *memStore) ContainerID(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.container, nil
}

func (m *memStore) SetContainerID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.container = id
	return nil
}

func (m *memStore) Profile(context.Context) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return nil, nil
	}
	p := *m.profile
	return &p, nil
}

func (m *memStore) SetProfile(_ context.Context, p *domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profile = &cp
	return nil
}

func (m *memStore) saved() *domain.ConversationSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.set == nil {
		return nil
	}
	return m.set.Clone()
}

// memProvider hands out one memStore per namespace
type memProvider struct {
	mu     sync.Mutex
	stores map[string]*memStore
}

func newMemProvider() *memProvider {
	return &memProvider{stores: map[string]*memStore{}}
}

func (p *memProvider) Store(ns string) domain.LocalStore {
	return p.get(ns)
}

func (p *memProvider) get(ns string) *memStore {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stores[ns]
	if !ok {
		s = newMemStore()
		p.stores[ns] = s
	}
	return s
}

func (p *memProvider) Namespaces(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for ns := range p.stores {
		out = append(out, ns)
	}
	return out, nil
}

func (p *memProvider) Ping(context.Context) error { return nil }
func (p *memProvider) Close() error               { return nil }

// fakeRemote is a backup.Store recording every write. When gate is set,
// Save blocks until a value is sent on it.
type fakeRemote struct {
	mu      sync.Mutex
	snap    *domain.Snapshot
	loadErr error
	saveErr error
	saves   int
	loads   int
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeRemote) Save(ctx context.Context, snap *domain.Snapshot) error {
	f.mu.Lock()
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.snap = snap
	return nil
}

func (f *fakeRemote) Load(context.Context) (*domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.snap == nil {
		return nil, domain.ErrNoBackup
	}
	return f.snap, nil
}

func (f *fakeRemote) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func (f *fakeRemote) latest() *domain.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

// MockProvider mocks llm.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string              { return "mock" }
func (m *MockProvider) AvailableModels() []string { return []string{"mock-1"} }
func (m *MockProvider) DefaultModel() string      { return "mock-1" }
func (m *MockProvider) IsConfigured() bool        { return true }

func (m *MockProvider) Generate(ctx context.Context, prompt string, opts llm.Options, model string) (*llm.Response, error) {
	args := m.Called(ctx, prompt, opts, model)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

// MockGenerator mocks the provider lookup
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) GetProvider(name string) (llm.Provider, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(llm.Provider), args.Error(1)
}

var errBoom = errors.New("boom")
