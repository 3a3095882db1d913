package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/digital-human/internal/logging"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, ":8090", cfg.Server.StateAddr)
	assert.Equal(t, "http://localhost:8000", cfg.Dialogue.BaseURL)
	assert.Equal(t, 3, cfg.Dialogue.MaxRetries)
	assert.Equal(t, time.Second, cfg.Dialogue.RetryDelay)
	assert.Equal(t, 15*time.Second, cfg.Dialogue.Timeout)
	assert.Equal(t, "zh-CN", cfg.Speech.TTS.Language)
	assert.Equal(t, 30*time.Second, cfg.Speech.ASR.Timeout)
	assert.Equal(t, 5, cfg.Store.MaxErrorQueue)
	assert.False(t, cfg.Vision.Enabled)
	assert.Equal(t, 640, cfg.Vision.Pipeline.Constraints.Width)
	assert.Equal(t, 60*time.Millisecond, cfg.Speech.CharDuration)
	assert.Equal(t, logging.LevelInfo, cfg.Log.Level)
	assert.Nil(t, cfg.AI.Temperature)
	assert.False(t, cfg.AI.Enabled())
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("Model", "doubao")
	t.Setenv("ARK_TEMPERATURE", "0.7")
	t.Setenv("ARK_MAX_TOKENS", "512")
	t.Setenv("AVATAR_DIALOGUE_RETRY_DELAY", "250ms")
	t.Setenv("AVATAR_REDIS_ADDR", "localhost:6379")
	t.Setenv("AVATAR_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.True(t, cfg.AI.Enabled())
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, 0.7, *cfg.AI.Temperature, 1e-9)
	require.NotNil(t, cfg.AI.MaxTokens)
	assert.Equal(t, 512, *cfg.AI.MaxTokens)
	assert.Equal(t, 250*time.Millisecond, cfg.Dialogue.RetryDelay)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, logging.LevelDebug, cfg.Log.Level)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "avatar.yaml")
	content := []byte("dialogue:\n  base_url: http://backend:8000\n  max_retries: 1\nspeech:\n  asr:\n    continuous: true\nserver:\n  state_port: \"\"\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://backend:8000", cfg.Dialogue.BaseURL)
	assert.Equal(t, 1, cfg.Dialogue.MaxRetries)
	assert.True(t, cfg.Speech.ASR.Continuous)
	assert.Empty(t, cfg.Server.StateAddr)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "80 80")

	_, err := Load("")
	require.Error(t, err)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestAIConfigNewChatModelRequiresCredentials(t *testing.T) {
	_, err := AIConfig{Model: "doubao"}.NewChatModel(t.Context())
	require.Error(t, err)
}
