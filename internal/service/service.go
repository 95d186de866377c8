// Package service is the operational facade exposed to the API layer: CRUD
// over strategy configuration plus lifecycle control, backed by the engine's
// working set and the persistence layer.
package service

import (
	"context"
	"fmt"
	"strings"

	"autotrader/internal/engine"
	"autotrader/internal/logger"
	"autotrader/internal/scheduler"
	"autotrader/internal/store/gormstore"
	"autotrader/internal/store/history"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = engine.ErrUnknownStrategy
	ErrNotStopped = engine.ErrNotStopped
)

// ConfigStore is the durable home of strategy records.
type ConfigStore interface {
	SaveStrategy(ctx context.Context, rec gormstore.StrategyRecord) error
	GetStrategy(ctx context.Context, id string) (gormstore.StrategyRecord, bool, error)
	ListStrategies(ctx context.Context) ([]gormstore.StrategyRecord, error)
	DeleteStrategy(ctx context.Context, id string) error
}

// HistoryReader serves the recent-signals query.
type HistoryReader interface {
	Recent(ctx context.Context, strategyID string, limit int) ([]history.Entry, error)
}

// ParamsValidator rejects plugin parameters that violate the registered
// template schema. The registry implements it.
type ParamsValidator interface {
	ValidateParams(kind, paramsJSON string) error
}

type Service struct {
	sched     *engine.Scheduler
	store     ConfigStore
	hist      HistoryReader
	validator ParamsValidator
}

func New(sched *engine.Scheduler, store ConfigStore, hist HistoryReader, validator ParamsValidator) *Service {
	return &Service{sched: sched, store: store, hist: hist, validator: validator}
}

// Recover rebuilds the engine's working set from the persistence layer.
// Called once on startup; strategies persisted as ACTIVE resume polling.
func (s *Service) Recover(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	recs, err := s.store.ListStrategies(ctx)
	if err != nil {
		return fmt.Errorf("load strategies failed: %w", err)
	}
	for _, rec := range recs {
		if err := s.sched.Hydrate(rec.Config, rec.Status, rec.Metrics); err != nil {
			logger.Warnf("skipping strategy %s during recovery: %v", rec.Config.ID, err)
		}
	}
	logger.Infof("recovered %d strategies", len(recs))
	return nil
}

// Create registers a new strategy in STOPPED status. A missing id is
// generated; invalid configuration is rejected synchronously.
func (s *Service) Create(ctx context.Context, cfg engine.Config) (engine.Config, error) {
	if strings.TrimSpace(cfg.ID) == "" {
		cfg.ID = uuid.NewString()
	}
	if err := s.validateConfig(cfg); err != nil {
		return engine.Config{}, err
	}
	if err := s.sched.Add(cfg); err != nil {
		return engine.Config{}, err
	}
	if err := s.persist(ctx, cfg.ID); err != nil {
		// A strategy that never reached the store must not linger in the
		// working set, or a client retry of the same id would hit a
		// duplicate conflict.
		if rmErr := s.sched.Remove(cfg.ID); rmErr != nil {
			logger.Warnf("rollback of unpersisted strategy %s failed: %v", cfg.ID, rmErr)
		}
		return engine.Config{}, fmt.Errorf("persist strategy %s failed: %w", cfg.ID, err)
	}
	return cfg, nil
}

// Update replaces a STOPPED strategy's configuration.
func (s *Service) Update(ctx context.Context, cfg engine.Config) error {
	if err := s.validateConfig(cfg); err != nil {
		return err
	}
	if err := s.sched.Update(cfg); err != nil {
		return err
	}
	return s.persist(ctx, cfg.ID)
}

// Delete removes a strategy. Requires STOPPED.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.sched.Remove(id); err != nil {
		return err
	}
	if s.store == nil {
		return nil
	}
	return s.store.DeleteStrategy(ctx, id)
}

func (s *Service) Start(ctx context.Context, id string) error {
	if err := s.sched.Start(id); err != nil {
		return err
	}
	return s.persist(ctx, id)
}

func (s *Service) Stop(ctx context.Context, id string) error {
	if err := s.sched.Stop(id); err != nil {
		return err
	}
	return s.persist(ctx, id)
}

func (s *Service) Pause(ctx context.Context, id string) error {
	if err := s.sched.Pause(id); err != nil {
		return err
	}
	return s.persist(ctx, id)
}

// Status returns a point-in-time snapshot of one strategy.
func (s *Service) Status(id string) (engine.Snapshot, error) {
	return s.sched.Snapshot(id)
}

// List returns snapshots of the whole working set.
func (s *Service) List() []engine.Snapshot {
	return s.sched.Snapshots()
}

// RecentSignals returns the latest history entries, most recent first.
func (s *Service) RecentSignals(ctx context.Context, id string, limit int) ([]history.Entry, error) {
	if _, err := s.sched.Snapshot(id); err != nil {
		return nil, err
	}
	if s.hist == nil {
		return nil, nil
	}
	return s.hist.Recent(ctx, id, limit)
}

// PersistAll flushes every strategy's runtime counters to the store, used
// on shutdown and on the periodic persistence tick.
func (s *Service) PersistAll(ctx context.Context) {
	for _, snap := range s.sched.Snapshots() {
		if err := s.persistSnapshot(ctx, snap); err != nil {
			logger.Warnf("persisting strategy %s failed: %v", snap.ID, err)
		}
	}
}

func (s *Service) persist(ctx context.Context, id string) error {
	snap, err := s.sched.Snapshot(id)
	if err != nil {
		return err
	}
	return s.persistSnapshot(ctx, snap)
}

func (s *Service) persistSnapshot(ctx context.Context, snap engine.Snapshot) error {
	if s.store == nil {
		return nil
	}
	return s.store.SaveStrategy(ctx, gormstore.StrategyRecord{
		Config:    snap.Config,
		Status:    snap.Status,
		Metrics:   snap.Metrics,
		LastError: snap.LastError,
	})
}

func (s *Service) validateConfig(cfg engine.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if tf := strings.TrimSpace(cfg.Timeframe); tf != "" {
		if _, ok := scheduler.ParseIntervalDuration(tf); !ok {
			return fmt.Errorf("invalid timeframe %q", cfg.Timeframe)
		}
	}
	if s.validator != nil {
		if err := s.validator.ValidateParams(cfg.Kind, cfg.Params); err != nil {
			return err
		}
	}
	return nil
}
