package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type profileRow struct {
	UID         string  `gorm:"primaryKey"`
	League      string  `gorm:"index;not null"`
	WeeklyScore int     `gorm:"index"`
	HasPending  bool    `gorm:"index"`
	Version     int64   `gorm:"not null"`
	Doc         Profile `gorm:"serializer:json;type:jsonb;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (profileRow) TableName() string { return "user_profiles" }

func toRow(p Profile) profileRow {
	return profileRow{
		UID:         p.UID,
		League:      string(p.League.CurrentLeague),
		WeeklyScore: p.League.WeeklyScore,
		HasPending:  len(p.PendingGrants) > 0,
		Version:     p.Version,
		Doc:         p,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func fromRow(r profileRow) Profile {
	p := r.Doc
	p.Version = r.Version
	return p
}

type PostgresStore struct {
	db     *gorm.DB
	energy int
}

func NewPostgresStore(db *gorm.DB, startingEnergy int) *PostgresStore {
	return &PostgresStore{db: db, energy: startingEnergy}
}

func (s *PostgresStore) Migrate() error {
	return s.db.AutoMigrate(&profileRow{})
}

func (s *PostgresStore) Get(ctx context.Context, uid string) (Profile, error) {
	var row profileRow
	err := s.db.WithContext(ctx).Where("uid = ?", uid).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return fromRow(row), nil
}

func (s *PostgresStore) Ensure(ctx context.Context, uid string) (Profile, error) {
	p := New(uid, s.energy, time.Now().UTC())
	p.Version = 1
	row := toRow(p)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return Profile{}, fmt.Errorf("ensure profile: %w", err)
	}
	return s.Get(ctx, uid)
}

func (s *PostgresStore) Update(ctx context.Context, p Profile) (Profile, error) {
	expected := p.Version
	p = p.Clone()
	p.Version = expected + 1
	p.UpdatedAt = time.Now().UTC()
	row := toRow(p)

	res := s.db.WithContext(ctx).
		Model(&profileRow{UID: p.UID}).
		Where("version = ?", expected).
		Select("*").Omit("created_at").
		Updates(&row)
	if res.Error != nil {
		return Profile{}, fmt.Errorf("update profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, p.UID); err != nil {
			return Profile{}, err
		}
		return Profile{}, ErrConflict
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Profile, error) {
	var rows []profileRow
	if err := s.db.WithContext(ctx).Order("uid").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]Profile, len(rows))
	for i, r := range rows {
		out[i] = fromRow(r)
	}
	return out, nil
}

func (s *PostgresStore) WithPendingGrants(ctx context.Context, limit int) ([]Profile, error) {
	var rows []profileRow
	tx := s.db.WithContext(ctx).Where("has_pending = ?", true).Order("uid")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("pending grants: %w", err)
	}
	out := make([]Profile, len(rows))
	for i, r := range rows {
		out[i] = fromRow(r)
	}
	return out, nil
}
