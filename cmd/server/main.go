package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rrens/chatvault/internal/api"
	"github.com/Rrens/chatvault/internal/backup"
	"github.com/Rrens/chatvault/internal/backup/drive"
	"github.com/Rrens/chatvault/internal/backup/gcs"
	"github.com/Rrens/chatvault/internal/config"
	"github.com/Rrens/chatvault/internal/domain"
	"github.com/Rrens/chatvault/internal/llm"
	"github.com/Rrens/chatvault/internal/llm/gemini"
	"github.com/Rrens/chatvault/internal/llm/ollama"
	"github.com/Rrens/chatvault/internal/llm/openai"
	"github.com/Rrens/chatvault/internal/notify"
	"github.com/Rrens/chatvault/internal/repository/bolt"
	"github.com/Rrens/chatvault/internal/repository/local"
	"github.com/Rrens/chatvault/internal/repository/redis"
	"github.com/Rrens/chatvault/internal/repository/sqlite"
	"github.com/Rrens/chatvault/internal/security"
	"github.com/Rrens/chatvault/internal/service"
	"github.com/joho/godotenv"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file - try multiple locations
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			fmt.Printf("Loaded .env from: %s\n", p)
			break
		}
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := setupLogger(cfg.Logging); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Str("backup", cfg.Backup.Provider).
		Msg("Starting chatvault server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local store")
	}

	encryptor, err := security.NewEncryptorFromSecret(cfg.Auth.TokenEncryptionSecret())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize token encryption")
	}
	stores := local.NewProvider(backend, encryptor)
	defer stores.Close()

	// Redis is optional: it carries rate limits and cross-instance sign-out
	var (
		redisClient *redis.Client
		rateLimiter *redis.RateLimiter
		bus         notify.Bus = notify.NewLocalBus()
	)
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()

		rateLimiter = redis.NewRateLimiter(redisClient, cfg.Chat.RateLimitRPM, cfg.Chat.RateLimitBurst)
		bus = redis.NewEventBus(redisClient, cfg.Redis.Channel)
	}
	defer bus.Close()

	sessions := service.NewSessionManager(stores, backupFactory(cfg.Backup), cfg.Sync)

	var verifier security.IdentityVerifier = security.NewGoogleVerifier(cfg.Auth.GoogleClientID)
	if cfg.Auth.InsecureSkipVerify {
		log.Warn().Msg("Identity token signatures are NOT verified")
		verifier = security.UnverifiedParser{}
	}

	jwtManager := security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	authService := service.NewAuthService(verifier, jwtManager, sessions, bus, notify.NewInstanceID())
	unsubscribe := authService.Listen()
	defer unsubscribe()

	llmRouter := newLLMRouter(cfg.LLM)

	go service.NewLogoutWatcher(sessions, cfg.Sync.LogoutPollInterval).Run(ctx)

	router := api.NewRouter(cfg, api.Dependencies{
		Auth:        authService,
		Sessions:    sessions,
		Chat:        service.NewChatService(llmRouter, cfg.Chat),
		LLM:         llmRouter,
		JWT:         jwtManager,
		Store:       stores,
		RateLimiter: rateLimiter,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// pending backups get the rest of the shutdown budget
	if err := sessions.FlushAll(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Pending backups did not finish")
	}
	sessions.Close()

	log.Info().Msg("Server stopped")
}

func setupLogger(cfg config.LoggingConfig) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var console io.Writer = os.Stderr
	if os.Getenv("ENV") != "production" && cfg.Format != "json" {
		console = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	if cfg.File == "" {
		log.Logger = zerolog.New(console).With().Timestamp().Logger()
		return nil
	}

	rotator, err := rotatelogs.New(
		cfg.File+".%Y%m%d",
		rotatelogs.WithLinkName(cfg.File),
		rotatelogs.WithRotationTime(cfg.RotationTime),
		rotatelogs.WithMaxAge(cfg.MaxAge),
	)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, rotator)).With().Timestamp().Logger()
	return nil
}

func openBackend(ctx context.Context, cfg config.StorageConfig) (local.Backend, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.NewDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		db, err := bolt.NewDB(cfg)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}

// backupFactory builds per-profile remote backup clients for the configured provider
func backupFactory(cfg config.BackupConfig) service.BackupFactory {
	switch cfg.Provider {
	case "none":
		return nil
	case "gcs":
		return func(ctx context.Context, subject string, creds *service.Credentials, _ domain.LocalStore) (backup.Store, error) {
			client, err := gcs.NewClient(ctx, creds, gcs.Config{
				Bucket:    cfg.GCSBucket,
				Prefix:    subject,
				Container: cfg.ContainerName,
				Archive:   cfg.Archive,
			})
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	default:
		return func(ctx context.Context, _ string, creds *service.Credentials, store domain.LocalStore) (backup.Store, error) {
			client, err := drive.NewClient(ctx, creds, store, drive.Options{
				FolderName: cfg.ContainerName,
				Archive:    cfg.Archive,
				Endpoint:   cfg.DriveEndpoint,
			})
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	}
}

func newLLMRouter(cfg config.LLMConfig) *llm.Router {
	router := llm.NewRouter(cfg.DefaultProvider)
	log.Info().Msgf("Initializing LLM providers. Default: %s", cfg.DefaultProvider)

	if cfg.Ollama.Host != "" {
		log.Info().Str("host", cfg.Ollama.Host).Msg("Registering Ollama provider")
		router.RegisterProvider(ollama.NewProvider(cfg.Ollama, cfg.Timeout))
	}
	if cfg.OpenAI.APIKey != "" {
		router.RegisterProvider(openai.NewProvider(cfg.OpenAI, cfg.Timeout))
	}
	if cfg.Gemini.APIKey != "" {
		router.RegisterProvider(gemini.NewProvider(cfg.Gemini))
	} else {
		log.Warn().Msg("Gemini API Key is empty, skipping registration")
	}
	return router
}
