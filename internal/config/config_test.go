package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
)

func TestDefaultsMatchEngineRules(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, engine.DefaultRules(), cfg.Rules())
	require.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestOverrides(t *testing.T) {
	t.Setenv("GAME_SYMBOLS", "A,B,C")
	t.Setenv("GAME_SYMBOLS_TO_WIN", "2")
	t.Setenv("GAME_ROUND_DURATION", "30s")
	t.Setenv("GAME_LIFE_LOSS", "CONTESTED")
	t.Setenv("ECONOMY_ENERGY_PER_MATCH", "2")

	cfg, err := Load()
	require.NoError(t, err)

	r := cfg.Rules()
	require.Equal(t, []engine.Symbol{"A", "B", "C"}, r.Symbols)
	require.Equal(t, 2, r.SymbolsToWin)
	require.Equal(t, 30*time.Second, r.RoundDuration)
	require.Equal(t, engine.LifeLossContested, r.LifeLoss)
	require.Equal(t, 2, cfg.Economy.EnergyPerMatch)
}

func TestInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"more symbols to win than exist", "GAME_SYMBOLS_TO_WIN", "9"},
		{"no lives", "GAME_STARTING_LIVES", "0"},
		{"unknown life loss", "GAME_LIFE_LOSS", "SOMETIMES"},
		{"bad duration", "GAME_ROUND_DURATION", "soon"},
		{"negative spin timeout", "GAME_SPIN_TIMEOUT", "-1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
		})
	}
}
