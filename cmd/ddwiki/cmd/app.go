package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jadedragon942/ddwiki/blob"
	"github.com/jadedragon942/ddwiki/blob/fsblob"
	"github.com/jadedragon942/ddwiki/blob/s3blob"
	"github.com/jadedragon942/ddwiki/blob/sqlblob"
	"github.com/jadedragon942/ddwiki/config"
	"github.com/jadedragon942/ddwiki/logging"
	"github.com/jadedragon942/ddwiki/orm"
	"github.com/jadedragon942/ddwiki/search"
	"github.com/jadedragon942/ddwiki/service"
	"github.com/jadedragon942/ddwiki/storage"
	"github.com/jadedragon942/ddwiki/storage/factory"
	"github.com/jadedragon942/ddwiki/wiki"
)

// app is everything a command needs, wired from the config.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	storage storage.Storage
	index   *search.Index
	wiki    *service.Wiki
}

// loadConfig reads the config and makes sure its data directory exists.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return cfg, nil
}

// openApp connects storage, picks the blob backend and builds the search
// index. reg receives the index metrics; nil leaves them unregistered.
func openApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*app, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	storage.SetLogger(logger)

	st, err := factory.New(cfg.Storage.Engine)
	if err != nil {
		return nil, err
	}
	sch := wiki.NewSchema()
	if cfg.Blobs.Backend == config.BlobDatabase {
		sqlblob.AddTables(sch)
	}
	o := orm.New(sch).WithStorage(st)
	if err := o.Open(ctx, cfg.StorageDSN()); err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Engine, err)
	}

	blobs, err := openBlobs(ctx, cfg, st)
	if err != nil {
		_ = st.ResetConnection(ctx)
		return nil, err
	}

	index := search.New(
		search.WithPageSize(cfg.Search.PageSize),
		search.WithMetrics(search.NewMetrics("ddwiki", reg)),
		search.WithLogger(logger),
	)

	w := service.New(wiki.NewStore(o, blobs, logger), index, cfg.HomePage, logger)
	if err := w.Init(ctx); err != nil {
		_ = index.Close()
		_ = st.ResetConnection(ctx)
		return nil, err
	}

	logger.Debug("wiki opened",
		zap.String("engine", cfg.Storage.Engine),
		zap.String("blobs", cfg.Blobs.Backend),
		zap.Int("indexed", w.IndexedDocuments()))

	return &app{cfg: cfg, logger: logger, storage: st, index: index, wiki: w}, nil
}

func openBlobs(ctx context.Context, cfg *config.Config, st storage.Storage) (blob.Store, error) {
	var (
		blobs blob.Store
		err   error
	)
	switch cfg.Blobs.Backend {
	case config.BlobFilesystem:
		blobs, err = fsblob.New(cfg.BlobDir())
	case config.BlobS3:
		blobs, err = s3blob.Open(ctx, cfg.Blobs.URL)
	default:
		blobs = sqlblob.New(st)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s blob store: %w", cfg.Blobs.Backend, err)
	}
	if cfg.Blobs.CacheEntries > 0 {
		return blob.NewCached(blobs, cfg.Blobs.CacheEntries, cfg.Blobs.CacheMaxBytes)
	}
	return blobs, nil
}

func (a *app) Close(ctx context.Context) error {
	err := errors.Join(a.index.Close(), a.storage.ResetConnection(ctx))
	_ = a.logger.Sync()
	return err
}

// withApp opens the wiki for a one-shot command and closes it afterwards.
func withApp(ctx context.Context, configPath string, fn func(a *app) error) (err error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close(context.Background()))
	}()
	return fn(a)
}
