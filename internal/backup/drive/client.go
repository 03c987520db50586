package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Rrens/chatvault/internal/backup"
	"github.com/Rrens/chatvault/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	appDataSpace   = "appDataFolder"
	folderMimeType = "application/vnd.google-apps.folder"

	// backups are small; anything larger is not ours
	maxBlobSize = 32 << 20
)

// Options configures a Drive backup client
type Options struct {
	// FolderName is the backup folder inside the app data space
	FolderName string
	// Archive also writes a dated copy next to the canonical blob
	Archive bool
	// Endpoint overrides the Drive API base URL
	Endpoint string
	// Base is the round tripper under the bearer transport
	Base http.RoundTripper
}

// Client stores snapshots in the user's Drive app data folder
type Client struct {
	svc     *drive.Service
	cache   backup.ContainerCache
	folder  string
	archive bool
}

// NewClient creates a Drive backup client. The token source is consulted on
// every request, so a token swapped mid-session takes effect immediately.
func NewClient(ctx context.Context, src oauth2.TokenSource, cache backup.ContainerCache, opts Options) (*Client, error) {
	if opts.FolderName == "" {
		opts.FolderName = backup.DefaultContainerName
	}

	httpClient := &http.Client{Transport: &oauth2.Transport{Source: src, Base: opts.Base}}
	clientOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &Client{
		svc:     svc,
		cache:   cache,
		folder:  opts.FolderName,
		archive: opts.Archive,
	}, nil
}

// Save writes the canonical blob, then the optional dated archive copy
func (c *Client) Save(ctx context.Context, snap *domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	err = c.withFolder(ctx, true, func(folderID string) error {
		return c.writeFile(ctx, folderID, backup.CanonicalName, data)
	})
	if err != nil {
		return err
	}

	if c.archive {
		name := backup.ArchiveName(snap.SavedAt)
		err := c.withFolder(ctx, true, func(folderID string) error {
			return c.writeFile(ctx, folderID, name, data)
		})
		if err != nil {
			log.Warn().Err(err).
				Str("kind", domain.ErrorKind(err)).
				Str("file", name).
				Msg("Failed to write archive backup")
		}
	}
	return nil
}

// Load reads and parses the canonical blob
func (c *Client) Load(ctx context.Context) (*domain.Snapshot, error) {
	var data []byte
	err := c.withFolder(ctx, false, func(folderID string) error {
		file, err := c.findFile(ctx, folderID, backup.CanonicalName)
		if err != nil {
			return err
		}
		if file == nil {
			return domain.ErrNoBackup
		}
		data, err = c.download(ctx, file.Id)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", domain.ErrNoBackup, err)
		}
		return nil, err
	}
	return domain.DecodeSnapshot(data)
}

// withFolder resolves the backup folder and runs fn against it. When a cached
// folder id turns out to be stale the cache is dropped, the folder resolved
// again and fn retried once.
func (c *Client) withFolder(ctx context.Context, create bool, fn func(folderID string) error) error {
	folderID, cached, err := c.resolveFolder(ctx, create)
	if err != nil {
		return err
	}

	err = fn(folderID)
	if err == nil || !cached || !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	log.Info().Str("folder_id", folderID).Msg("Cached backup folder is gone, resolving again")
	if err := c.cache.SetContainerID(ctx, ""); err != nil {
		log.Warn().Err(err).Msg("Failed to clear cached backup folder id")
	}

	folderID, _, err = c.resolveFolder(ctx, create)
	if err != nil {
		return err
	}
	return fn(folderID)
}

// resolveFolder returns the folder id and whether it came from the cache.
// Without create, a missing folder is reported as domain.ErrNoBackup.
func (c *Client) resolveFolder(ctx context.Context, create bool) (string, bool, error) {
	if id, err := c.cache.ContainerID(ctx); err == nil && id != "" {
		return id, true, nil
	}

	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQuery(c.folder), folderMimeType)
	list, err := c.svc.Files.List().
		Spaces(appDataSpace).
		Q(q).
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return "", false, backup.Classify(fmt.Errorf("failed to search backup folder: %w", err))
	}

	var id string
	switch {
	case len(list.Files) > 0:
		id = list.Files[0].Id
	case !create:
		return "", false, domain.ErrNoBackup
	default:
		folder, err := c.svc.Files.Create(&drive.File{
			Name:     c.folder,
			MimeType: folderMimeType,
			Parents:  []string{appDataSpace},
		}).Fields("id").Context(ctx).Do()
		if err != nil {
			return "", false, backup.Classify(fmt.Errorf("failed to create backup folder: %w", err))
		}
		id = folder.Id
		log.Info().Str("folder_id", id).Msg("Created backup folder")
	}

	if err := c.cache.SetContainerID(ctx, id); err != nil {
		log.Warn().Err(err).Msg("Failed to cache backup folder id")
	}
	return id, false, nil
}

func (c *Client) findFile(ctx context.Context, folderID, name string) (*drive.File, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(name), escapeQuery(folderID))
	list, err := c.svc.Files.List().
		Spaces(appDataSpace).
		Q(q).
		Fields("files(id, name, modifiedTime)").
		OrderBy("modifiedTime desc").
		Context(ctx).
		Do()
	if err != nil {
		return nil, backup.Classify(fmt.Errorf("failed to search %s: %w", name, err))
	}
	if len(list.Files) == 0 {
		return nil, nil
	}
	return list.Files[0], nil
}

func (c *Client) writeFile(ctx context.Context, folderID, name string, data []byte) error {
	existing, err := c.findFile(ctx, folderID, name)
	if err != nil {
		return err
	}

	media := googleapi.ContentType(backup.ContentType)
	if existing != nil {
		_, err = c.svc.Files.Update(existing.Id, &drive.File{}).
			Media(bytes.NewReader(data), media).
			Context(ctx).
			Do()
		if err != nil {
			return backup.Classify(fmt.Errorf("failed to update %s: %w", name, err))
		}
		return nil
	}

	_, err = c.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: backup.ContentType,
		Parents:  []string{folderID},
	}).Media(bytes.NewReader(data), media).Fields("id").Context(ctx).Do()
	if err != nil {
		return backup.Classify(fmt.Errorf("failed to create %s: %w", name, err))
	}
	return nil
}

func (c *Client) download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := c.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, backup.Classify(fmt.Errorf("failed to download backup: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBlobSize))
	if err != nil {
		return nil, backup.Classify(fmt.Errorf("failed to read backup: %w", err))
	}
	return data, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
