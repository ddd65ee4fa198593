package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
)

func setupPostgres(t *testing.T) *PostgresStore {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Skip("Postgres not available:", err)
	}

	rules := engine.DefaultRules()
	s := NewPostgresStore(db, func(m engine.Match) (time.Time, bool) { return engine.NextWake(m, rules) })
	require.NoError(t, s.Migrate())
	return s
}

func TestPostgresStore_CompareAndSwap(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	id := uuid.NewString()
	created, err := s.Create(ctx, engine.NewRandomMatch(id, "A-"+id, "B-"+id, "", engine.VariantAsync, time.Now().UTC(), engine.DefaultRules()))
	require.NoError(t, err)

	stale := created.Clone()
	next := created.Clone()
	next.Turn.CurrentUID = next.Players[1]

	updated, err := s.Update(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	_, err = s.Update(ctx, stale)
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, next.Players[1], got.Turn.CurrentUID)
	assert.Equal(t, int64(2), got.Version)
}

func TestPostgresStore_WaitingInviteCodeIsUnique(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	rules := engine.DefaultRules()
	code := uuid.NewString()[:6]

	_, err := s.Create(ctx, engine.NewInviteMatch(uuid.NewString(), "host-1", code, engine.VariantAsync, time.Now().UTC(), rules))
	require.NoError(t, err)

	_, err = s.Create(ctx, engine.NewInviteMatch(uuid.NewString(), "host-2", code, engine.VariantAsync, time.Now().UTC(), rules))
	assert.ErrorIs(t, err, ErrInviteCodeTaken)
}
