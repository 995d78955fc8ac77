// Package sqlite is a single-file store backend on gorm and SQLite, for
// running one bot without a database server.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

var (
	_ domain.StateStore   = (*Store)(nil)
	_ domain.AttemptStore = (*Store)(nil)
	_ domain.AuditStore   = (*Store)(nil)
)

type botState struct {
	ID             uint            `gorm:"primaryKey"`
	Status         string          `gorm:"not null"`
	Direction      string
	Amount         decimal.Decimal `gorm:"type:decimal(30,10)"`
	OpenedAt       *time.Time
	EntrySpreadPct float64
	Note           string
	UpdatedAt      time.Time
}

type tradeAttempt struct {
	ID          string `gorm:"primaryKey"`
	Purpose     string
	Direction   string
	Amount      decimal.Decimal `gorm:"type:decimal(30,10)"`
	SymbolA     string
	SymbolB     string
	SpreadPct   float64
	DryRun      bool
	Outcome     string              `gorm:"index"`
	Detail      domain.TradeOutcome `gorm:"serializer:json"`
	StartedAt   time.Time           `gorm:"index"`
	CompletedAt time.Time
}

type auditLog struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	Event     string         `gorm:"index"`
	Detail    map[string]any `gorm:"serializer:json"`
	CreatedAt time.Time      `gorm:"index"`
}

// Store implements the state, attempt and audit stores on one SQLite file.
type Store struct {
	db *gorm.DB
}

// Open creates the database file if needed and migrates the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create dir: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&botState{}, &tradeAttempt{}, &auditLog{}); err != nil {
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Load(ctx context.Context) (domain.Position, error) {
	var row botState
	err := s.db.WithContext(ctx).
		Where(botState{ID: 1}).
		Attrs(botState{Status: string(domain.PositionFlat), Amount: decimal.Zero}).
		FirstOrCreate(&row).Error
	if err != nil {
		return domain.Position{}, fmt.Errorf("sqlite: load state: %w", err)
	}
	pos := domain.Position{
		Status:         domain.PositionStatus(row.Status),
		Direction:      domain.Direction(row.Direction),
		Amount:         row.Amount,
		EntrySpreadPct: row.EntrySpreadPct,
		Note:           row.Note,
		UpdatedAt:      row.UpdatedAt,
	}
	if row.OpenedAt != nil {
		pos.OpenedAt = *row.OpenedAt
	}
	return pos, nil
}

func (s *Store) Save(ctx context.Context, pos domain.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	row := botState{
		ID:             1,
		Status:         string(pos.Status),
		Direction:      string(pos.Direction),
		Amount:         pos.Amount,
		EntrySpreadPct: pos.EntrySpreadPct,
		Note:           pos.Note,
		UpdatedAt:      pos.UpdatedAt,
	}
	if !pos.OpenedAt.IsZero() {
		t := pos.OpenedAt
		row.OpenedAt = &t
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("sqlite: save state: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, a domain.TradeAttempt) error {
	row := tradeAttempt{
		ID:          a.ID,
		Purpose:     string(a.Purpose),
		Direction:   string(a.Direction),
		Amount:      a.Amount,
		SymbolA:     a.SymbolA,
		SymbolB:     a.SymbolB,
		SpreadPct:   a.SpreadPct,
		DryRun:      a.DryRun,
		Outcome:     string(a.Outcome.Kind),
		Detail:      a.Outcome,
		StartedAt:   a.StartedAt.UTC(), // stored as text; one zone keeps range queries ordered
		CompletedAt: a.CompletedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("sqlite: insert attempt %s: %w", a.ID, err)
	}
	return nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.TradeAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []tradeAttempt
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list attempts: %w", err)
	}
	return toAttempts(rows), nil
}

// ListBetween returns the attempts started in [from, to), oldest first.
func (s *Store) ListBetween(ctx context.Context, from, to time.Time) ([]domain.TradeAttempt, error) {
	var rows []tradeAttempt
	err := s.db.WithContext(ctx).
		Where("started_at >= ? AND started_at < ?", from.UTC(), to.UTC()).
		Order("started_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlite: list attempts between: %w", err)
	}
	return toAttempts(rows), nil
}

func toAttempts(rows []tradeAttempt) []domain.TradeAttempt {
	out := make([]domain.TradeAttempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.TradeAttempt{
			ID:          r.ID,
			Purpose:     domain.TradePurpose(r.Purpose),
			Direction:   domain.Direction(r.Direction),
			Amount:      r.Amount,
			SymbolA:     r.SymbolA,
			SymbolB:     r.SymbolB,
			SpreadPct:   r.SpreadPct,
			DryRun:      r.DryRun,
			Outcome:     r.Detail,
			StartedAt:   r.StartedAt,
			CompletedAt: r.CompletedAt,
		})
	}
	return out
}

func (s *Store) Log(ctx context.Context, event string, detail map[string]any) error {
	if err := s.db.WithContext(ctx).Create(&auditLog{Event: event, Detail: detail}).Error; err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	q := s.db.WithContext(ctx).Model(&auditLog{})
	if opts.Since != nil {
		q = q.Where("created_at >= ?", *opts.Since)
	}
	if opts.Until != nil {
		q = q.Where("created_at <= ?", *opts.Until)
	}
	q = q.Order("created_at DESC, id DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	var rows []auditLog
	if err := q.Find(&rows).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	out := make([]domain.AuditEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.AuditEntry{ID: r.ID, Event: r.Event, Detail: r.Detail, CreatedAt: r.CreatedAt})
	}
	return out, nil
}
