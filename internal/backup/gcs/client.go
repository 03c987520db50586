package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"cloud.google.com/go/storage"
	"github.com/Rrens/chatvault/internal/backup"
	"github.com/Rrens/chatvault/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

const maxBlobSize = 32 << 20

// Config holds configuration for a GCS backup client
type Config struct {
	Bucket string
	// Prefix scopes the objects to one profile, usually its subject
	Prefix string
	// Container is the folder-like path segment below the prefix
	Container string
	Archive   bool
	// Endpoint overrides the storage API endpoint
	Endpoint string
}

// Client stores snapshots as objects in a bucket
type Client struct {
	client  *storage.Client
	bucket  string
	dir     string
	archive bool
}

// NewClient creates a GCS backup client authenticated with src. The token
// source is read per request through an oauth2 transport.
func NewClient(ctx context.Context, src oauth2.TokenSource, cfg Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs backup requires a bucket")
	}
	if cfg.Container == "" {
		cfg.Container = backup.DefaultContainerName
	}

	opts := []option.ClientOption{
		option.WithHTTPClient(&http.Client{Transport: &oauth2.Transport{Source: src}}),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &Client{
		client:  client,
		bucket:  cfg.Bucket,
		dir:     containerDir(cfg.Prefix, cfg.Container),
		archive: cfg.Archive,
	}, nil
}

// containerDir returns the object prefix playing the role of the backup folder
func containerDir(prefix, container string) string {
	return path.Join(prefix, container) + "/"
}

// ObjectName returns the full object name of a blob in the container
func (c *Client) ObjectName(name string) string {
	return c.dir + name
}

// Save writes the canonical object and the optional dated archive
func (c *Client) Save(ctx context.Context, snap *domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := c.write(ctx, c.ObjectName(backup.CanonicalName), data); err != nil {
		return err
	}

	if c.archive {
		name := c.ObjectName(backup.ArchiveName(snap.SavedAt))
		if err := c.write(ctx, name, data); err != nil {
			log.Warn().Err(err).
				Str("kind", domain.ErrorKind(err)).
				Str("object", name).
				Msg("Failed to write archive backup")
		}
	}
	return nil
}

// Load reads the canonical object
func (c *Client) Load(ctx context.Context) (*domain.Snapshot, error) {
	obj := c.client.Bucket(c.bucket).Object(c.ObjectName(backup.CanonicalName))
	reader, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, domain.ErrNoBackup
		}
		return nil, backup.Classify(fmt.Errorf("gcs get failed: %w", err))
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(io.LimitReader(reader, maxBlobSize))
	if err != nil {
		return nil, backup.Classify(fmt.Errorf("gcs read failed: %w", err))
	}
	return domain.DecodeSnapshot(data)
}

// Close closes the GCS client
func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) write(ctx context.Context, name string, data []byte) error {
	w := c.client.Bucket(c.bucket).Object(name).NewWriter(ctx)
	w.ContentType = backup.ContentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return backup.Classify(fmt.Errorf("gcs write failed: %w", err))
	}
	if err := w.Close(); err != nil {
		return backup.Classify(fmt.Errorf("gcs close failed: %w", err))
	}
	return nil
}
