package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"carelytics/internal/adapter/file"
	"carelytics/internal/adapter/memory"
	"carelytics/internal/adapter/mongo"
	"carelytics/internal/adapter/postgres"
	"carelytics/internal/config"
	"carelytics/internal/domain"
)

// openStore builds the configured PatientStore and a func that releases it.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (domain.PatientStore, func(), error) {
	noop := func() {}

	switch cfg.Store.Driver {
	case config.DriverFile:
		return file.New(cfg.Store.Path, cfg.Store.LockTimeout, log.Named("store")), noop, nil

	case config.DriverMemory:
		log.Warn("using in-memory store; records are lost on exit")
		return memory.New(nil), noop, nil

	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("db open: %w", err)
		}
		return db, func() {
			if err := db.Close(); err != nil {
				log.Warn("close postgres", zap.Error(err))
			}
		}, nil

	case config.DriverMongo:
		s, err := mongo.Open(ctx, mongo.Config{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.Database,
			ConnectTimeout: 10 * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("mongo open: %w", err)
		}
		return s, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Close(ctx); err != nil {
				log.Warn("close mongo", zap.Error(err))
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
