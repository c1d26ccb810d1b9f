package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/signal-bridge/internal/core/llm"
	"github.com/lueurxax/signal-bridge/internal/platform/config"
)

func newTestApp(cfg *config.Config) *App {
	logger := zerolog.Nop()

	return New(cfg, nil, &logger)
}

func TestNewLLMClientSelectsMock(t *testing.T) {
	a := newTestApp(&config.Config{LLMAPIKey: "mock"})

	client := a.newLLMClient()

	raw, err := client.CompleteJSON(context.Background(), llm.Request{Task: llm.TaskSelfTest})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, raw)
}

func TestMonitorWindow(t *testing.T) {
	a := newTestApp(&config.Config{
		BackfillDays:    30,
		MonitorInterval: 15 * time.Minute,
	})

	assert.Equal(t, 30*24*time.Hour, a.monitorWindow(time.Time{}))
	assert.Equal(t, 15*time.Minute, a.monitorWindow(time.Now().Add(-time.Hour)))
}

func TestSkipTick(t *testing.T) {
	tests := []struct {
		name        string
		minInterval time.Duration
		lastRun     time.Time
		want        bool
	}{
		{
			name:        "first run never skips",
			minInterval: time.Hour,
			lastRun:     time.Time{},
			want:        false,
		},
		{
			name:        "zero interval never skips",
			minInterval: 0,
			lastRun:     time.Now(),
			want:        false,
		},
		{
			name:        "recent run skips",
			minInterval: time.Hour,
			lastRun:     time.Now().Add(-time.Minute),
			want:        true,
		},
		{
			name:        "stale run proceeds",
			minInterval: time.Hour,
			lastRun:     time.Now().Add(-2 * time.Hour),
			want:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(&config.Config{BackfillMinInterval: tt.minInterval})

			assert.Equal(t, tt.want, a.skipTick(tt.lastRun))
		})
	}
}
