package questions

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"gorm.io/gorm"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
)

type PostgresBank struct {
	db *gorm.DB
}

func NewPostgresBank(db *gorm.DB) *PostgresBank {
	return &PostgresBank{db: db}
}

func (b *PostgresBank) Migrate() error {
	return b.db.AutoMigrate(&Question{})
}

// Seed upserts questions by id.
func (b *PostgresBank) Seed(ctx context.Context, qs []Question) error {
	if len(qs) == 0 {
		return nil
	}
	return b.db.WithContext(ctx).Save(&qs).Error
}

func (b *PostgresBank) Draw(ctx context.Context, category engine.Symbol, exclude []string) (Question, error) {
	r := rand.Float64()

	q, err := b.seek(ctx, category, exclude, "random_key >= ?", "random_key ASC", r)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		q, err = b.seek(ctx, category, exclude, "random_key < ?", "random_key ASC", r)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Question{}, ErrNoQuestionsLeft
	}
	if err != nil {
		return Question{}, fmt.Errorf("draw question: %w", err)
	}
	return q, nil
}

func (b *PostgresBank) seek(ctx context.Context, category engine.Symbol, exclude []string, cond, order string, r float64) (Question, error) {
	tx := b.db.WithContext(ctx).Where("category = ?", category).Where(cond, r)
	if len(exclude) > 0 {
		tx = tx.Where("id NOT IN ?", exclude)
	}
	var q Question
	err := tx.Order(order).Take(&q).Error
	return q, err
}

func (b *PostgresBank) Get(ctx context.Context, id string) (Question, error) {
	var q Question
	err := b.db.WithContext(ctx).Where("id = ?", id).Take(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Question{}, ErrQuestionNotFound
	}
	if err != nil {
		return Question{}, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}
