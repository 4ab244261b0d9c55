package config

import (
	"testing"

	v "github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withDefaults(t *testing.T) {
	t.Helper()

	v.Reset()
	t.Cleanup(v.Reset)

	SetDefaults()
	v.Set("jwt.secret", "test-secret")
}

func TestValidate_Defaults(t *testing.T) {
	withDefaults(t)
	require.NoError(t, Validate())
}

func TestValidate_MissingSecret(t *testing.T) {
	withDefaults(t)
	v.Set("jwt.secret", "")

	assert.ErrorIs(t, Validate(), ErrMissingJWTSecret)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"LogLevel", "app.log_level", "verbose"},
		{"PortZero", "host.port", 0},
		{"PortTooLarge", "host.port", 70000},
		{"DBDriver", "db.driver", "mysql"},
		{"EmptyDSN", "db.dsn", ""},
		{"EmptyUploadDir", "upload.dir", ""},
		{"UploadSize", "upload.max_size", 0},
		{"FFmpegTimeout", "ffmpeg.timeout", "0s"},
		{"Workers", "pipeline.workers", 0},
		{"QueueSize", "pipeline.queue_size", -1},
		{"StaleAfter", "pipeline.stale_after", "nonsense"},
		{"StaleNotAboveTimeout", "pipeline.stale_after", "10m"},
		{"ReapInterval", "pipeline.reap_interval", "0s"},
		{"BroadcastType", "broadcast.type", "kafka"},
		{"RateLimit", "security.rate_limit", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withDefaults(t)
			v.Set(tt.key, tt.value)

			assert.Error(t, Validate())
		})
	}
}

func TestValidate_RedisNeedsAddr(t *testing.T) {
	withDefaults(t)
	v.Set("broadcast.type", "redis")
	require.NoError(t, Validate())

	v.Set("redis.addr", "")
	assert.Error(t, Validate())
}

func TestValidate_StaleAfterOutlivesTimeout(t *testing.T) {
	withDefaults(t)
	v.Set("ffmpeg.timeout", "5m")
	v.Set("pipeline.stale_after", "5m1s")
	require.NoError(t, Validate())

	v.Set("ffmpeg.timeout", "20m")
	assert.Error(t, Validate())
}
