package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/Rrens/chatvault/internal/config"
	"github.com/Rrens/chatvault/internal/repository/bolt"
	"github.com/Rrens/chatvault/internal/repository/local"
	"github.com/Rrens/chatvault/internal/repository/sqlite"
	"github.com/joho/godotenv"
)

// Every key a profile namespace can hold. Values are copied as stored, so
// encrypted tokens stay readable under the same encryption secret.
var profileKeys = []string{
	local.KeyConversations,
	local.KeyBearerToken,
	local.KeyContainerID,
	local.KeyProfile,
}

func main() {
	overwrite := flag.Bool("overwrite", false, "replace namespaces that already exist in the sqlite store")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx := context.Background()

	fmt.Printf("Opening bolt store at %s...\n", cfg.Storage.BoltPath)
	src, err := bolt.NewDB(cfg.Storage)
	if err != nil {
		panic(fmt.Sprintf("Failed to open bolt store: %v", err))
	}
	defer src.Close()

	fmt.Printf("Opening sqlite store at %s...\n", cfg.Storage.SQLitePath)
	dst, err := sqlite.NewDB(ctx, cfg.Storage)
	if err != nil {
		panic(fmt.Sprintf("Failed to open sqlite store: %v", err))
	}
	defer dst.Close()

	copied, err := migrate(ctx, src, dst, *overwrite)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Migrated %d profile(s)\n", copied)
}

// migrate copies every profile namespace from src to dst and returns how many
// were written
func migrate(ctx context.Context, src, dst local.Backend, overwrite bool) (int, error) {
	namespaces, err := src.Namespaces(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list profiles: %w", err)
	}

	existing, err := dst.Namespaces(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list target profiles: %w", err)
	}
	present := make(map[string]bool, len(existing))
	for _, ns := range existing {
		present[ns] = true
	}

	copied := 0
	for _, ns := range namespaces {
		if present[ns] {
			if !overwrite {
				fmt.Printf("Skipping %s: already present\n", ns)
				continue
			}
			if err := dst.DeleteNamespace(ctx, ns); err != nil {
				return copied, fmt.Errorf("failed to clear %s: %w", ns, err)
			}
		}

		for _, key := range profileKeys {
			value, ok, err := src.Get(ctx, ns, key)
			if err != nil {
				return copied, fmt.Errorf("failed to read %s/%s: %w", ns, key, err)
			}
			if !ok {
				continue
			}
			if err := dst.Put(ctx, ns, key, value); err != nil {
				return copied, fmt.Errorf("failed to write %s/%s: %w", ns, key, err)
			}
		}
		fmt.Printf("Copied %s\n", ns)
		copied++
	}
	return copied, nil
}
