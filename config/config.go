// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	configDir = pflag.String("config-dir", ".", "Directory containing config.toml")

	validLogLevels       = []string{"debug", "info", "warn", "error", "fatal"}
	validDBDrivers       = []string{"sqlite", "postgres"}
	validBroadcastTypes  = []string{"memory", "redis"}
	ErrMissingJWTSecret  = errors.New("jwt.secret is not set")
	ErrNoConfigFileFound = errors.New("config.toml file is missing")
)

func genSecret() string {
	b := make([]byte, 64)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func bindEnvs() {
	v.BindEnv("app.log_level", "app_log_level")

	v.BindEnv("host.port", "host_port")
	v.BindEnv("host.cors", "host_cors")

	v.BindEnv("jwt.secret", "jwt_secret")

	v.BindEnv("db.driver", "db_driver")
	v.BindEnv("db.dsn", "db_dsn")

	v.BindEnv("upload.dir", "upload_dir")
	v.BindEnv("upload.max_size", "upload_max_size")
	v.BindEnv("upload.allowed_types", "upload_allowed_types")

	v.BindEnv("ffmpeg.path", "ffmpeg_path")
	v.BindEnv("ffprobe.path", "ffprobe_path")
	v.BindEnv("ffmpeg.timeout", "ffmpeg_timeout")

	v.BindEnv("pipeline.workers", "pipeline_workers")
	v.BindEnv("pipeline.queue_size", "pipeline_queue_size")
	v.BindEnv("pipeline.stale_after", "pipeline_stale_after")
	v.BindEnv("pipeline.reap_interval", "pipeline_reap_interval")

	v.BindEnv("broadcast.type", "broadcast_type")
	v.BindEnv("redis.addr", "redis_addr")
	v.BindEnv("redis.password", "redis_password")
	v.BindEnv("redis.db", "redis_db")

	v.BindEnv("security.rate_limit", "security_rate_limit")
}

// SetDefaults registers the default value of every known key
func SetDefaults() {
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)
	v.SetDefault("host.cors", []string{"http://localhost:5173"})

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "./data/pulsestream.db")

	v.SetDefault("upload.dir", "./uploads")
	v.SetDefault("upload.max_size", 500)
	v.SetDefault("upload.allowed_types", []string{
		"video/mp4", "video/webm", "video/quicktime", "video/x-msvideo", "video/x-matroska",
	})

	v.SetDefault("ffmpeg.path", "ffmpeg")
	v.SetDefault("ffprobe.path", "ffprobe")
	v.SetDefault("ffmpeg.timeout", "10m")

	v.SetDefault("pipeline.workers", 2)
	v.SetDefault("pipeline.queue_size", 64)
	v.SetDefault("pipeline.stale_after", "30m")
	v.SetDefault("pipeline.reap_interval", "1m")

	v.SetDefault("broadcast.type", "memory")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("security.rate_limit", 10)
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(*configDir)

	v.AutomaticEnv()
	bindEnvs()
	SetDefaults()

	if err := v.ReadInConfig(); err != nil {
		var notFound v.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file, %w", err)
		}

		fmt.Println("[WARNING]: No config.toml found, running with defaults and environment variables")
	}

	if err := Validate(); err != nil {
		if errors.Is(err, ErrMissingJWTSecret) {
			fmt.Println("WARNING: You haven't set a JWT secret, so it has been generated for you. Please set it as an environment variable or in the config.toml file.\nYour random JWT secret:\n\n" + genSecret() + "\n\nPaste it into your config.toml file.")
			os.Exit(0)
		}

		return err
	}

	if len(v.GetStringSlice("upload.allowed_types")) == 0 {
		zap.L().Warn("No upload.allowed_types specified, any video type will be accepted")
	}

	v.Set("upload.max_size", v.GetInt64("upload.max_size")<<20)
	return nil
}

// Validate checks the currently loaded values. upload.max_size is still
// expected in MiB at this point.
func Validate() error {
	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if port := v.GetInt("host.port"); port <= 0 || port > 65535 {
		return errors.New("invalid port provided")
	}

	if v.GetString("jwt.secret") == "" {
		return ErrMissingJWTSecret
	}

	if !slices.Contains(validDBDrivers, v.GetString("db.driver")) {
		return errors.New("invalid database driver provided")
	}

	if v.GetString("db.dsn") == "" {
		return errors.New("db.dsn can't be empty")
	}

	if v.GetString("upload.dir") == "" {
		return errors.New("upload.dir can't be empty")
	}

	if v.GetInt("upload.max_size") <= 0 {
		return errors.New("upload.max_size must be bigger than 0")
	}

	if v.GetDuration("ffmpeg.timeout") <= 0 {
		return errors.New("ffmpeg.timeout must be a positive duration")
	}

	if v.GetInt("pipeline.workers") <= 0 {
		return errors.New("pipeline.workers must be bigger than 0")
	}

	if v.GetInt("pipeline.queue_size") <= 0 {
		return errors.New("pipeline.queue_size must be bigger than 0")
	}

	if v.GetDuration("pipeline.stale_after") <= 0 {
		return errors.New("pipeline.stale_after must be a positive duration")
	}

	// Another instance may still be inside a single ffmpeg call
	if v.GetDuration("pipeline.stale_after") <= v.GetDuration("ffmpeg.timeout") {
		return errors.New("pipeline.stale_after must be longer than ffmpeg.timeout")
	}

	if v.GetDuration("pipeline.reap_interval") <= 0 {
		return errors.New("pipeline.reap_interval must be a positive duration")
	}

	switch v.GetString("broadcast.type") {
	case "redis":
		if v.GetString("redis.addr") == "" {
			return errors.New("redis.addr can't be empty when broadcast.type is redis")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid broadcast type provided, expected one of %v", validBroadcastTypes)
	}

	if v.GetInt("security.rate_limit") <= 0 {
		return errors.New("security.rate_limit must be bigger than 0")
	}

	return nil
}
