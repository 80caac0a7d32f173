// Package gormstore is a GORM/PostgreSQL implementation of store.DecisionStore.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ixentbench/purple/pkg/store"
)

// Option allows configuring the DB connection.
type Option func(*config)

type config struct {
	Logger logger.Interface
}

// WithLogger sets a custom GORM logger.
func WithLogger(l logger.Interface) Option { return func(c *config) { c.Logger = l } }

// SlogLogger reports slow queries and errors through l at warn level.
func SlogLogger(l *slog.Logger) logger.Interface {
	return logger.New(slogWriter{l}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

type slogWriter struct{ l *slog.Logger }

func (w slogWriter) Printf(format string, args ...any) {
	w.l.Warn(fmt.Sprintf(format, args...), "component", "gorm")
}

// Open opens a Postgres-backed GORM connection and migrates the schema.
func Open(dsn string, opts ...Option) (*Store, error) {
	cfg := &config{Logger: logger.Default.LogMode(logger.Silent)}
	for _, o := range opts {
		o(cfg)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&DecisionModel{}); err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return nil, fmt.Errorf("migrate %s: %w", Table, err)
	}
	return &Store{db: db}, nil
}

// DecisionModel is the GORM model for decisions.
type DecisionModel struct {
	ID          string    `gorm:"primaryKey;type:text"`
	AgentID     string    `gorm:"type:text;not null"`
	Model       string    `gorm:"type:text;not null"`
	LevelID     string    `gorm:"index;type:text;not null"`
	Turn        int       `gorm:"not null"`
	Command     string    `gorm:"type:text;not null"`
	Reasoning   string    `gorm:"type:text;not null"`
	Outcome     string    `gorm:"index;type:text;not null"`
	Attempts    int       `gorm:"not null"`
	Tokens      int64     `gorm:"not null"`
	Rejections  []byte    `gorm:"type:jsonb"`
	Observation []byte    `gorm:"type:jsonb"`
	CreatedAt   time.Time `gorm:"index;not null"`
}

// Table is separate from the SQL store's table: the column types differ,
// so the two backends can point at the same database without clashing.
const Table = "gorm_decisions"

func (DecisionModel) TableName() string { return Table }

// Store implements store.DecisionStore using GORM.
type Store struct{ db *gorm.DB }

// SaveDecision inserts d, assigning an id and timestamp when missing.
func (s *Store) SaveDecision(ctx context.Context, d store.DecisionRecord) (store.DecisionRecord, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	m := DecisionModel{
		ID: d.ID, AgentID: d.AgentID, Model: d.Model, LevelID: d.LevelID, Turn: d.Turn,
		Command: d.Command, Reasoning: d.Reasoning, Outcome: d.Outcome, Attempts: d.Attempts,
		Tokens: d.Tokens, CreatedAt: d.CreatedAt,
	}
	if len(d.Rejections) > 0 {
		b, err := json.Marshal(d.Rejections)
		if err != nil {
			return store.DecisionRecord{}, err
		}
		m.Rejections = b
	}
	if len(d.Observation) > 0 {
		m.Observation = d.Observation
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return store.DecisionRecord{}, err
	}
	return d, nil
}

// GetDecision loads one decision by id.
func (s *Store) GetDecision(ctx context.Context, id string) (store.DecisionRecord, error) {
	if id == "" {
		return store.DecisionRecord{}, store.ErrInvalidID
	}
	var m DecisionModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.DecisionRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.DecisionRecord{}, err
	}
	return toRecord(m)
}

// ListDecisions returns the newest decisions first.
func (s *Store) ListDecisions(ctx context.Context, limit int) ([]store.DecisionRecord, error) {
	var models []DecisionModel
	err := s.db.WithContext(ctx).Order("created_at desc, id desc").Limit(store.ClampLimit(limit)).Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]store.DecisionRecord, 0, len(models))
	for _, m := range models {
		d, err := toRecord(m)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(m DecisionModel) (store.DecisionRecord, error) {
	d := store.DecisionRecord{
		ID: m.ID, AgentID: m.AgentID, Model: m.Model, LevelID: m.LevelID, Turn: m.Turn,
		Command: m.Command, Reasoning: m.Reasoning, Outcome: m.Outcome, Attempts: m.Attempts,
		Tokens: m.Tokens, CreatedAt: m.CreatedAt.UTC(),
	}
	if len(m.Rejections) > 0 {
		if err := json.Unmarshal(m.Rejections, &d.Rejections); err != nil {
			return store.DecisionRecord{}, err
		}
	}
	if len(m.Observation) > 0 {
		d.Observation = json.RawMessage(m.Observation)
	}
	return d, nil
}
