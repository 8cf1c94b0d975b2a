package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_ID", "42")
	t.Setenv("CHANNEL_ID", "-1001234567890")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.EqualValues(t, 42, cfg.AdminID)
	assert.EqualValues(t, -1001234567890, cfg.ChannelID)
	assert.Equal(t, "bot_database.db", cfg.DatabasePath)
	assert.Equal(t, "ru", cfg.DefaultLanguage)
	assert.Equal(t, 60*time.Second, cfg.SchedulerInterval)
	assert.Equal(t, 30*time.Second, cfg.DeliveryTimeout)
	assert.Equal(t, 10, cfg.MaxDeliveryAttempts)
	assert.False(t, cfg.WebAppAllowUnsigned)
	require.NotNil(t, cfg.Location)
	assert.Equal(t, "Europe/Moscow", cfg.Location.String())
}

func TestFromEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SCHEDULER_INTERVAL", "15s")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("WEBAPP_ALLOW_UNSIGNED", "true")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.SchedulerInterval)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.True(t, cfg.WebAppAllowUnsigned)
}

func TestFromEnvErrors(t *testing.T) {
	t.Run("missing admin", func(t *testing.T) {
		t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
		t.Setenv("CHANNEL_ID", "-100")
		t.Setenv("ADMIN_ID", "")
		_, err := FromEnv()
		assert.Error(t, err)
	})
	t.Run("unknown timezone", func(t *testing.T) {
		setRequired(t)
		t.Setenv("TIMEZONE", "Mars/Olympus")
		_, err := FromEnv()
		assert.Error(t, err)
	})
	t.Run("zero interval", func(t *testing.T) {
		setRequired(t)
		t.Setenv("SCHEDULER_INTERVAL", "0s")
		_, err := FromEnv()
		assert.Error(t, err)
	})
}
