package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cppla/campusnews/config"
	"github.com/cppla/campusnews/content"
	"github.com/cppla/campusnews/repository"
	"github.com/cppla/campusnews/routes"
	"github.com/cppla/campusnews/services"
	"github.com/cppla/campusnews/storage"
	"github.com/cppla/campusnews/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		cancel()
		utils.Sugar.Fatalf("failed to open %s store: %v", cfg.DBDriver, err)
	}
	store, uploadRoot, err := openStorage(ctx, cfg)
	if err != nil {
		cancel()
		utils.Sugar.Fatalf("failed to open %s storage: %v", cfg.StorageDriver, err)
	}
	generator := newGenerator(ctx, cfg)
	cancel()

	rc := utils.GetRedis()
	svc := services.NewAnnouncementService(repo, generator, store, utils.Logger)
	r := routes.SetupRouter(routes.Deps{
		Config:     cfg,
		Service:    svc,
		Store:      store,
		UploadRoot: uploadRoot,
		Redis:      rc,
	})

	cleanerCtx, stopCleaner := context.WithCancel(context.Background())
	if cfg.UploadCleanupMinutes > 0 {
		interval := time.Duration(cfg.UploadCleanupMinutes) * time.Minute
		utils.StartUploadCleaner(cleanerCtx, interval, interval, repo, store)
	}

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	err = utils.GraceServer(":"+cfg.AppPort, r,
		func(context.Context) { stopCleaner() },
		closeRepo,
		func(context.Context) { utils.CloseRedis() },
	)
	if err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

// openRepository connects the configured announcement store and returns a
// shutdown hook releasing it.
func openRepository(ctx context.Context, cfg config.AppConfig) (repository.AnnouncementRepository, func(context.Context), error) {
	switch strings.ToLower(cfg.DBDriver) {
	case "mongo", "mongodb":
		client, db, err := config.OpenMongo(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewMongoRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			utils.Sugar.Warnf("failed to ensure mongo indexes: %v", err)
		}
		utils.Sugar.Infof("using mongo database %s", cfg.MongoDatabase)
		return repo, func(ctx context.Context) {
			if err := client.Disconnect(ctx); err != nil {
				utils.Sugar.Warnf("mongo disconnect: %v", err)
			}
		}, nil
	case "mysql", "":
		db, err := config.OpenMySQL(cfg)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewGormRepository(db)
		if err := repo.Migrate(); err != nil {
			return nil, nil, fmt.Errorf("auto migrate: %w", err)
		}
		utils.Sugar.Infof("using mysql database %s", cfg.DBName)
		return repo, func(context.Context) {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}, nil
	case "memory":
		utils.Sugar.Warn("using in-memory store; announcements are lost on restart")
		return repository.NewMemoryRepository(), func(context.Context) {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}

// openStorage returns the attachment store and, for local disk, the
// directory to serve under /uploads.
func openStorage(ctx context.Context, cfg config.AppConfig) (*storage.Store, string, error) {
	switch strings.ToLower(cfg.StorageDriver) {
	case "s3":
		backend, err := storage.NewS3Backend(ctx, storage.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
			Prefix:    "uploads/",
		})
		if err != nil {
			return nil, "", err
		}
		return storage.NewStore(backend, s3PublicURL(cfg), utils.Logger), "", nil
	case "local", "":
		backend, err := storage.NewLocalBackend(cfg.UploadDir)
		if err != nil {
			return nil, "", err
		}
		return storage.NewStore(backend, "/uploads/", utils.Logger), backend.Root(), nil
	default:
		return nil, "", fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}

// s3PublicURL is where clients fetch objects stored under the uploads/ prefix.
func s3PublicURL(cfg config.AppConfig) string {
	if cfg.S3Endpoint != "" {
		return strings.TrimRight(cfg.S3Endpoint, "/") + "/" + cfg.S3Bucket + "/uploads/"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/uploads/", cfg.S3Bucket, cfg.S3Region)
}

func newGenerator(ctx context.Context, cfg config.AppConfig) *content.Generator {
	opts := []content.Option{
		content.WithTimeout(time.Duration(cfg.AITimeoutSeconds) * time.Second),
		content.WithImageProviders(
			&content.Unsplash{AccessKey: cfg.UnsplashAccessKey},
			&content.Pexels{APIKey: cfg.PexelsAPIKey},
		),
	}
	if cfg.GeminiAPIKey != "" {
		model, err := content.NewGeminiSummarizer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			utils.Sugar.Warnf("AI summaries disabled: %v", err)
		} else {
			opts = append(opts, content.WithTextModel(model))
		}
	}
	return content.NewGenerator(utils.Logger, opts...)
}
