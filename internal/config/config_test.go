package config

import (
	stderrors "errors"
	"testing"

	"github.com/duynguyendang/vultester/pkg/common/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"PORT", "VULTESTER_PORT", "VULTESTER_KB", "VULTESTER_CATALOG",
		"VULTESTER_CACHE_SIZE", "VULTESTER_LOG_LEVEL", "VULTESTER_LOG_FORMAT",
		"GEMINI_API_KEY", "GEMINI_MODEL", "VULTESTER_HISTORY_DIR", "VULTESTER_HISTORY_KEEP",
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.False(t, cfg.AIEnabled())
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("VULTESTER_PORT", "9100")
	t.Setenv("VULTESTER_KB", "/etc/vultester/rules.yaml")
	t.Setenv("VULTESTER_CACHE_SIZE", "0")
	t.Setenv("VULTESTER_LOG_LEVEL", "DEBUG")
	t.Setenv("VULTESTER_LOG_FORMAT", "console")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("GEMINI_MODEL", "gemini-test")
	t.Setenv("VULTESTER_HISTORY_DIR", "/var/lib/vultester")
	t.Setenv("VULTESTER_HISTORY_KEEP", "50")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, "/etc/vultester/rules.yaml", cfg.KnowledgeBase)
	assert.Equal(t, 0, cfg.CacheSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.True(t, cfg.AIEnabled())
	assert.Equal(t, "gemini-test", cfg.GeminiModel)
	assert.Equal(t, "/var/lib/vultester", cfg.HistoryDir)
	assert.Equal(t, 50, cfg.HistoryKeep)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"VULTESTER_PORT", "http"},
		{"VULTESTER_PORT", "70000"},
		{"VULTESTER_CACHE_SIZE", "many"},
		{"VULTESTER_HISTORY_KEEP", "all"},
		{"VULTESTER_HISTORY_KEEP", "-1"},
		{"VULTESTER_CACHE_SIZE", "-1"},
		{"VULTESTER_LOG_LEVEL", "loud"},
		{"VULTESTER_LOG_FORMAT", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := FromEnv()
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrInvalidInput))
		})
	}
}
