package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
)

const pgUniqueViolation = "23505"

// matchRow keeps the whole match as one JSON document. The plain columns
// only exist so the lookups below can use an index.
type matchRow struct {
	ID         string       `gorm:"primaryKey"`
	Status     string       `gorm:"index;not null"`
	InviteCode *string      `gorm:"index"`
	PlayerA    string       `gorm:"index"`
	PlayerB    string       `gorm:"index"`
	WakeAt     *time.Time   `gorm:"index"`
	Version    int64        `gorm:"not null"`
	Doc        engine.Match `gorm:"serializer:json;type:jsonb;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (matchRow) TableName() string { return "matches" }

type PostgresStore struct {
	db   *gorm.DB
	wake WakeFunc
}

func NewPostgresStore(db *gorm.DB, wake WakeFunc) *PostgresStore {
	return &PostgresStore{db: db, wake: wake}
}

func (s *PostgresStore) Migrate() error {
	if err := s.db.AutoMigrate(&matchRow{}); err != nil {
		return err
	}
	// one WAITING match per code; finished matches may reuse it
	return s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_waiting_code
		ON matches (invite_code) WHERE status = 'WAITING'`).Error
}

func (s *PostgresStore) toRow(m engine.Match) matchRow {
	row := matchRow{
		ID:        m.ID,
		Status:    string(m.Status),
		Version:   m.Version,
		Doc:       m,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.InviteCode != "" {
		code := m.InviteCode
		row.InviteCode = &code
	}
	if len(m.Players) > 0 {
		row.PlayerA = m.Players[0]
	}
	if len(m.Players) > 1 {
		row.PlayerB = m.Players[1]
	}
	if at, ok := s.wake(m); ok {
		row.WakeAt = &at
	}
	return row
}

func (s *PostgresStore) Create(ctx context.Context, m engine.Match) (engine.Match, error) {
	m = m.Clone()
	m.Version = 1
	row := s.toRow(m)

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			if m.InviteCode != "" {
				return engine.Match{}, ErrInviteCodeTaken
			}
			return engine.Match{}, ErrConflict
		}
		return engine.Match{}, fmt.Errorf("create match: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (engine.Match, error) {
	var row matchRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Match{}, ErrNotFound
	}
	if err != nil {
		return engine.Match{}, fmt.Errorf("get match: %w", err)
	}
	return fromRow(row), nil
}

func (s *PostgresStore) Update(ctx context.Context, m engine.Match) (engine.Match, error) {
	expected := m.Version
	m = m.Clone()
	m.Version = expected + 1
	row := s.toRow(m)

	res := s.db.WithContext(ctx).
		Model(&matchRow{ID: m.ID}).
		Where("version = ?", expected).
		Select("*").Omit("created_at").
		Updates(&row)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return engine.Match{}, ErrInviteCodeTaken
		}
		return engine.Match{}, fmt.Errorf("update match: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, m.ID); err != nil {
			return engine.Match{}, err
		}
		return engine.Match{}, ErrConflict
	}
	return m, nil
}

func (s *PostgresStore) FindByInviteCode(ctx context.Context, code string) (engine.Match, error) {
	var row matchRow
	err := s.db.WithContext(ctx).
		Where("invite_code = ?", code).
		Order("CASE WHEN status = 'WAITING' THEN 0 ELSE 1 END").
		Order("created_at DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Match{}, ErrNotFound
	}
	if err != nil {
		return engine.Match{}, fmt.Errorf("find invite: %w", err)
	}
	return fromRow(row), nil
}

func (s *PostgresStore) ActiveFor(ctx context.Context, uid string) (engine.Match, bool, error) {
	var row matchRow
	err := s.db.WithContext(ctx).
		Where("(player_a = ? OR player_b = ?) AND status IN ?", uid, uid,
			[]string{string(engine.StatusWaiting), string(engine.StatusActive)}).
		Order("created_at DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Match{}, false, nil
	}
	if err != nil {
		return engine.Match{}, false, fmt.Errorf("active match for %s: %w", uid, err)
	}
	return fromRow(row), true, nil
}

func (s *PostgresStore) Due(ctx context.Context, now time.Time, limit int) ([]engine.Match, error) {
	var rows []matchRow
	tx := s.db.WithContext(ctx).Where("wake_at <= ?", now).Order("wake_at ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("due matches: %w", err)
	}
	out := make([]engine.Match, len(rows))
	for i, r := range rows {
		out[i] = fromRow(r)
	}
	return out, nil
}

func fromRow(row matchRow) engine.Match {
	m := row.Doc
	m.Version = row.Version
	return m
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
