package domain

import "context"

// LocalStore is the durable per-profile key-value state. Every write replaces
// the whole value stored under its key.
type LocalStore interface {
	// SaveSet stores the full Conversation Set, overwriting prior content
	SaveSet(ctx context.Context, set *ConversationSet) error
	// LoadSet returns the saved set, or an empty set when absent or corrupt
	LoadSet(ctx context.Context) *ConversationSet
	// Clear removes every key of the profile
	Clear(ctx context.Context) error

	BearerToken(ctx context.Context) (string, error)
	SetBearerToken(ctx context.Context, token string) error
	ContainerID(ctx context.Context) (string, error)
	SetContainerID(ctx context.Context, id string) error
	Profile(ctx context.Context) (*Profile, error)
	SetProfile(ctx context.Context, p *Profile) error
	// HasSet reports whether conversation data is stored
	HasSet(ctx context.Context) (bool, error)
}

// LocalStoreProvider opens per-profile stores on one backing database
type LocalStoreProvider interface {
	Store(namespace string) LocalStore
	Namespaces(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
