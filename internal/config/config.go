// Package config reads process settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Empty DatabaseURL keeps everything in memory.
	DatabaseURL string `env:"DATABASE_URL"`
	// Empty RedisURL uses the in-process queue and no job locker.
	RedisURL  string `env:"REDIS_URL"`
	QueueName string `env:"QUEUE_NAME" envDefault:"default"`

	QuestionsFile string `env:"QUESTIONS_FILE"`
	RewardsFile   string `env:"REWARDS_FILE"`

	Game     Game     `envPrefix:"GAME_"`
	Economy  Economy  `envPrefix:"ECONOMY_"`
	Schedule Schedule `envPrefix:"SCHEDULE_"`
}

type Game struct {
	StartingLives      int           `env:"STARTING_LIVES" envDefault:"5"`
	SymbolsToWin       int           `env:"SYMBOLS_TO_WIN" envDefault:"4"`
	Symbols            []string      `env:"SYMBOLS" envSeparator:"," envDefault:"SPOR,TARIH,BILIM,COGRAFYA,SANAT,EGLENCE"`
	RoundDuration      time.Duration `env:"ROUND_DURATION" envDefault:"20s"`
	SubmitGrace        time.Duration `env:"SUBMIT_GRACE" envDefault:"1s"`
	ResultGrace        time.Duration `env:"RESULT_GRACE" envDefault:"5s"`
	SpinTimeout        time.Duration `env:"SPIN_TIMEOUT" envDefault:"2m"`
	InviteTTL          time.Duration `env:"INVITE_TTL" envDefault:"10m"`
	TrophiesPerCorrect int           `env:"TROPHIES_PER_CORRECT" envDefault:"10"`
	StreakMultiplier   int           `env:"STREAK_MULTIPLIER" envDefault:"2"`
	RoundLimit         int           `env:"ROUND_LIMIT" envDefault:"40"`
	LifeLoss           string        `env:"LIFE_LOSS" envDefault:"ALWAYS"`
	CASRetries         int           `env:"CAS_RETRIES" envDefault:"5"`
}

type Economy struct {
	StartingEnergy int `env:"STARTING_ENERGY" envDefault:"5"`
	EnergyPerMatch int `env:"ENERGY_PER_MATCH" envDefault:"1"`
	AvgPairSeconds int `env:"AVG_PAIR_SECONDS" envDefault:"15"`
	WinBonus       int `env:"WIN_BONUS" envDefault:"25"`
	PerfectBonus   int `env:"PERFECT_BONUS" envDefault:"10"`
	LeagueBandSize int `env:"LEAGUE_BAND_SIZE" envDefault:"5"`
}

type Schedule struct {
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1s"`
	RewardInterval time.Duration `env:"REWARD_INTERVAL" envDefault:"1m"`
	// Weekly rollover, Monday 00:00 UTC by default.
	LeagueCron string `env:"LEAGUE_CRON" envDefault:"0 0 * * 1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) validate() error {
	g := c.Game
	switch {
	case g.StartingLives < 1:
		return fmt.Errorf("GAME_STARTING_LIVES must be positive, got %d", g.StartingLives)
	case g.SymbolsToWin < 1 || g.SymbolsToWin > len(g.Symbols):
		return fmt.Errorf("GAME_SYMBOLS_TO_WIN must be between 1 and %d, got %d", len(g.Symbols), g.SymbolsToWin)
	case g.RoundDuration <= 0:
		return fmt.Errorf("GAME_ROUND_DURATION must be positive")
	case g.SpinTimeout < 0:
		return fmt.Errorf("GAME_SPIN_TIMEOUT must not be negative")
	case g.CASRetries < 1:
		return fmt.Errorf("GAME_CAS_RETRIES must be positive")
	}
	switch engine.LifeLossPolicy(g.LifeLoss) {
	case engine.LifeLossAlways, engine.LifeLossContested:
	default:
		return fmt.Errorf("GAME_LIFE_LOSS must be ALWAYS or CONTESTED, got %q", g.LifeLoss)
	}
	return nil
}

// Rules derives the engine rules from the game settings.
func (c Config) Rules() engine.Rules {
	g := c.Game
	syms := make([]engine.Symbol, len(g.Symbols))
	for i, s := range g.Symbols {
		syms[i] = engine.Symbol(s)
	}
	return engine.Rules{
		StartingLives:      g.StartingLives,
		SymbolsToWin:       g.SymbolsToWin,
		Symbols:            syms,
		RoundDuration:      g.RoundDuration,
		SubmitGrace:        g.SubmitGrace,
		ResultGrace:        g.ResultGrace,
		SpinTimeout:        g.SpinTimeout,
		InviteTTL:          g.InviteTTL,
		TrophiesPerCorrect: g.TrophiesPerCorrect,
		StreakMultiplier:   g.StreakMultiplier,
		RoundLimit:         g.RoundLimit,
		LifeLoss:           engine.LifeLossPolicy(g.LifeLoss),
	}
}
