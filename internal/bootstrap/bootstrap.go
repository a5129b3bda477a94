// Package bootstrap wires configuration, storage and services for both the
// desktop shell and the command line importer.
package bootstrap

import (
	"context"
	"fmt"

	"dcpinventory-desktop/internal/api"
	"dcpinventory-desktop/internal/config"
	"dcpinventory-desktop/internal/crypto"
	"dcpinventory-desktop/internal/database"
	"dcpinventory-desktop/internal/ingest"
	"dcpinventory-desktop/internal/logging"
	"dcpinventory-desktop/internal/reconcile"
	"dcpinventory-desktop/internal/services/auth"
	"dcpinventory-desktop/internal/services/upload"
	"dcpinventory-desktop/internal/session"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Runtime holds the initialized services
type Runtime struct {
	Config  *config.Configuration
	Log     *zap.SugaredLogger
	DB      *gorm.DB
	Session session.Store
	Client  *api.Client
	Auth    *auth.Service
	Uploads *upload.Service
}

// New builds a Runtime from cfg. Progress events go to sink.
func New(ctx context.Context, cfg *config.Configuration, sink upload.ProgressSink) (*Runtime, error) {
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	sealer, err := crypto.LoadSealer(cfg.EncryptionKey, log)
	if err != nil {
		return nil, fmt.Errorf("encryption initialization failed: %w", err)
	}

	db, err := database.Init(cfg.Database, cfg.LogLevel, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	store := session.NewDBStore(db, sealer, log)
	if err := store.Load(); err != nil {
		log.Warnf("[session] %v", err)
	}

	client := api.NewClient(cfg.API, store, log)
	if sink == nil {
		sink = upload.LogSink{Log: log}
	}

	uploads := upload.NewService(ctx, client, db, log, upload.Options{
		Layout:        LayoutFrom(cfg.Layout),
		SchoolColumns: ColumnsFrom(cfg.Columns),
		Workers:       cfg.ContactUpdateWorkers,
		Sink:          sink,
	})

	log.Infof("Connected services to %s", client.BaseURL())

	return &Runtime{
		Config:  cfg,
		Log:     log,
		DB:      db,
		Session: store,
		Client:  client,
		Auth:    auth.NewService(client, store, log),
		Uploads: uploads,
	}, nil
}

// Close releases the database and flushes the logger
func (r *Runtime) Close() error {
	_ = r.Log.Sync()
	return database.Close(r.DB)
}

// LayoutFrom converts configured row indices to an ingest layout
func LayoutFrom(opts config.LayoutOptions) ingest.Layout {
	return ingest.Layout{
		HeaderRowIndex:    opts.HeaderRowIndex,
		SubHeaderRowIndex: opts.SubHeaderRowIndex,
		DataStartIndex:    opts.DataStartIndex,
	}
}

// ColumnsFrom converts configured column names for the resolver.
// Unset names fall back to the defaults.
func ColumnsFrom(opts config.ColumnOptions) reconcile.Columns {
	c := reconcile.DefaultColumns
	if opts.SchoolID != "" {
		c.SchoolID = opts.SchoolID
	}
	if opts.Name != "" {
		c.Name = opts.Name
	}
	if opts.Division != "" {
		c.Division = opts.Division
	}
	if opts.District != "" {
		c.District = opts.District
	}
	return c
}
