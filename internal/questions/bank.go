// Package questions holds the question bank the duel engine draws from.
package questions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
)

var ErrNoQuestionsLeft = errors.New("no questions left for category")
var ErrQuestionNotFound = errors.New("question not found")

type Choice struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

type Question struct {
	ID       string        `json:"id" gorm:"primaryKey"`
	Category engine.Symbol `json:"category" gorm:"index:idx_questions_draw,priority:1;not null"`
	Prompt   string        `json:"prompt" gorm:"not null"`
	Choices  []Choice      `json:"choices" gorm:"serializer:json;type:jsonb"`
	// Answer is the key of the correct choice. It never leaves the server.
	Answer string `json:"answer" gorm:"not null"`
	// RandomKey spreads questions uniformly so a draw can seek from a random point.
	RandomKey float64 `json:"randomKey" gorm:"index:idx_questions_draw,priority:2"`
}

type Bank interface {
	// Draw returns a question of category whose id is not in exclude.
	Draw(ctx context.Context, category engine.Symbol, exclude []string) (Question, error)
	Get(ctx context.Context, id string) (Question, error)
}

// LoadFile reads a JSON array of questions. Missing random keys are filled in.
func LoadFile(path string) ([]Question, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	var qs []Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil, fmt.Errorf("decode questions %s: %w", path, err)
	}
	for i := range qs {
		if qs[i].RandomKey == 0 {
			qs[i].RandomKey = rand.Float64()
		}
	}
	return qs, nil
}
