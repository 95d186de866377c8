// Package gormstore is the durable copy of strategy configuration and
// runtime counters. The scheduler owns the in-memory working set; this store
// is the source of truth the working set is rebuilt from on startup.
package gormstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"autotrader/internal/engine"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// StrategyRecord pairs a strategy's configuration with its persisted runtime
// state.
type StrategyRecord struct {
	Config    engine.Config
	Status    engine.Status
	Metrics   engine.Metrics
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type strategyModel struct {
	ID              string  `gorm:"column:id;primaryKey"`
	Name            string  `gorm:"column:name"`
	Kind            string  `gorm:"column:kind"`
	Params          string  `gorm:"column:params_json"`
	SymbolsJSON     string  `gorm:"column:symbols_json"`
	Timeframe       string  `gorm:"column:timeframe"`
	CheckInterval   int     `gorm:"column:check_interval"`
	AutoExecute     bool    `gorm:"column:auto_execute"`
	MaxPositionSize float64 `gorm:"column:max_position_size"`
	MaxPositions    int     `gorm:"column:max_positions"`
	DailyLossLimit  float64 `gorm:"column:daily_loss_limit"`
	PositionSizePct float64 `gorm:"column:position_size_pct"`
	RulesJSON       string  `gorm:"column:rules_json"`
	Status          string  `gorm:"column:status;index"`
	SignalsDetected int64   `gorm:"column:signals_detected"`
	TradesExecuted  int64   `gorm:"column:trades_executed"`
	DailyPnL        float64 `gorm:"column:daily_pnl"`
	TotalPnL        float64 `gorm:"column:total_pnl"`
	LastError       string  `gorm:"column:last_error"`
	CreatedAtUnix   int64   `gorm:"column:created_at"`
	UpdatedAtUnix   int64   `gorm:"column:updated_at"`
}

func (strategyModel) TableName() string { return "strategies" }

// GormStore implements strategy persistence using Gorm + SQLite.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&strategyModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a little parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB so the signal history store can share
// the connection instead of opening a second one against the same file.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	return s.db.DB()
}

// SaveStrategy upserts a strategy's configuration and runtime counters.
func (s *GormStore) SaveStrategy(ctx context.Context, rec StrategyRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if strings.TrimSpace(rec.Config.ID) == "" {
		return fmt.Errorf("strategy record requires an id")
	}
	model, err := newStrategyModel(rec)
	if err != nil {
		return err
	}
	cols := []string{
		"name", "kind", "params_json", "symbols_json", "timeframe", "check_interval",
		"auto_execute", "max_position_size", "max_positions", "daily_loss_limit",
		"position_size_pct", "rules_json", "status", "signals_detected",
		"trades_executed", "daily_pnl", "total_pnl", "last_error", "updated_at",
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(cols),
		}).
		Create(&model).Error
}

// GetStrategy returns one record; the bool reports existence.
func (s *GormStore) GetStrategy(ctx context.Context, id string) (StrategyRecord, bool, error) {
	if s == nil || s.db == nil {
		return StrategyRecord{}, false, fmt.Errorf("gorm store not initialized")
	}
	var model strategyModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StrategyRecord{}, false, nil
		}
		return StrategyRecord{}, false, err
	}
	rec, err := modelToRecord(model)
	if err != nil {
		return StrategyRecord{}, false, err
	}
	return rec, true, nil
}

// ListStrategies returns all records ordered by creation time.
func (s *GormStore) ListStrategies(ctx context.Context) ([]StrategyRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	var models []strategyModel
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]StrategyRecord, 0, len(models))
	for _, m := range models {
		rec, err := modelToRecord(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// DeleteStrategy removes a record. Deleting a missing id is not an error.
func (s *GormStore) DeleteStrategy(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&strategyModel{}).Error
}

func newStrategyModel(rec StrategyRecord) (strategyModel, error) {
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.Status == "" {
		rec.Status = engine.StatusStopped
	}
	symbols, err := json.Marshal(rec.Config.Symbols)
	if err != nil {
		return strategyModel{}, err
	}
	rules, err := json.Marshal(rec.Config.Rules)
	if err != nil {
		return strategyModel{}, err
	}
	return strategyModel{
		ID:              rec.Config.ID,
		Name:            rec.Config.Name,
		Kind:            rec.Config.Kind,
		Params:          rec.Config.Params,
		SymbolsJSON:     string(symbols),
		Timeframe:       rec.Config.Timeframe,
		CheckInterval:   rec.Config.CheckInterval,
		AutoExecute:     rec.Config.AutoExecute,
		MaxPositionSize: rec.Config.MaxPositionSize,
		MaxPositions:    rec.Config.MaxPositions,
		DailyLossLimit:  rec.Config.DailyLossLimit,
		PositionSizePct: rec.Config.PositionSizePct,
		RulesJSON:       string(rules),
		Status:          string(rec.Status),
		SignalsDetected: rec.Metrics.SignalsDetected,
		TradesExecuted:  rec.Metrics.TradesExecuted,
		DailyPnL:        rec.Metrics.DailyPnL,
		TotalPnL:        rec.Metrics.TotalPnL,
		LastError:       rec.LastError,
		CreatedAtUnix:   rec.CreatedAt.UnixMilli(),
		UpdatedAtUnix:   rec.UpdatedAt.UnixMilli(),
	}, nil
}

func modelToRecord(m strategyModel) (StrategyRecord, error) {
	var symbols []string
	if strings.TrimSpace(m.SymbolsJSON) != "" {
		if err := json.Unmarshal([]byte(m.SymbolsJSON), &symbols); err != nil {
			return StrategyRecord{}, fmt.Errorf("decode symbols for %s failed: %w", m.ID, err)
		}
	}
	var rules []engine.RiskRule
	if strings.TrimSpace(m.RulesJSON) != "" && m.RulesJSON != "null" {
		if err := json.Unmarshal([]byte(m.RulesJSON), &rules); err != nil {
			return StrategyRecord{}, fmt.Errorf("decode rules for %s failed: %w", m.ID, err)
		}
	}
	return StrategyRecord{
		Config: engine.Config{
			ID:              m.ID,
			Name:            m.Name,
			Kind:            m.Kind,
			Params:          m.Params,
			Symbols:         symbols,
			Timeframe:       m.Timeframe,
			CheckInterval:   m.CheckInterval,
			AutoExecute:     m.AutoExecute,
			MaxPositionSize: m.MaxPositionSize,
			MaxPositions:    m.MaxPositions,
			DailyLossLimit:  m.DailyLossLimit,
			PositionSizePct: m.PositionSizePct,
			Rules:           rules,
		},
		Status: engine.Status(m.Status),
		Metrics: engine.Metrics{
			SignalsDetected: m.SignalsDetected,
			TradesExecuted:  m.TradesExecuted,
			DailyPnL:        m.DailyPnL,
			TotalPnL:        m.TotalPnL,
		},
		LastError: m.LastError,
		CreatedAt: time.UnixMilli(m.CreatedAtUnix),
		UpdatedAt: time.UnixMilli(m.UpdatedAtUnix),
	}, nil
}
