// Package backup defines the remote backup contract shared by the Drive and
// GCS clients, the blob naming policy, and the error classification that maps
// remote failures onto the domain taxonomy.
package backup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Rrens/chatvault/internal/domain"
	"google.golang.org/api/googleapi"
)

const (
	// CanonicalName is the single authoritative backup blob. It is always
	// overwritten and is the only blob ever read back.
	CanonicalName = "conversations-latest.json"

	// DefaultContainerName is the folder (or object prefix) holding the blobs
	DefaultContainerName = "AI Chat Backups"

	// ContentType of every blob written
	ContentType = "application/json"
)

// Store is a remote backup target for one profile
type Store interface {
	// Save writes the snapshot as the canonical blob
	Save(ctx context.Context, snap *domain.Snapshot) error
	// Load reads the canonical blob. It returns domain.ErrNoBackup when no
	// backup exists and domain.ErrStorageCorrupt when the blob is unreadable.
	Load(ctx context.Context) (*domain.Snapshot, error)
}

// ContainerCache remembers the resolved backup container id between calls.
// domain.LocalStore satisfies it.
type ContainerCache interface {
	ContainerID(ctx context.Context) (string, error)
	SetContainerID(ctx context.Context, id string) error
}

// ArchiveName returns the dated, non-authoritative copy name for t
func ArchiveName(t time.Time) string {
	return fmt.Sprintf("backup-%s.json", t.UTC().Format("2006-01-02"))
}

// Classify maps a remote error onto the domain taxonomy. Errors that already
// carry a taxonomy class are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		domain.ErrAuthExpired,
		domain.ErrNetworkFailure,
		domain.ErrNotFound,
		domain.ErrNoBackup,
		domain.ErrStorageCorrupt,
	} {
		if errors.Is(err, known) {
			return err
		}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, err)
	}

	// transport failures, timeouts and cancellations
	return fmt.Errorf("%w: %v", domain.ErrNetworkFailure, err)
}

func classifyStatus(code int, err error) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %v", domain.ErrAuthExpired, err)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	default:
		// 429, 5xx and anything unexpected are treated as transient
		return fmt.Errorf("%w: %v", domain.ErrNetworkFailure, err)
	}
}
