package utils

import (
	"log/slog"
	"os"
	"time"
)

type Config struct {
	port     string
	hostname string

	jwtSecret string
	jwtExpire time.Duration

	location *time.Location

	syncIntervalDefault      time.Duration
	globalSyncInterval       time.Duration
	metricCollectionInterval time.Duration

	smtpHost     string
	smtpPort     string
	smtpUsername string
	smtpPassword string
	smtpFrom     string

	discordAppToken  string
	discordChannelID string
}

func NewConfig() *Config {
	return &Config{
		port: func() string {
			port := os.Getenv("PORT")
			if port == "" {
				port = "8080"
			}
			slog.Debug("env", "PORT", port)
			return port
		}(),
		hostname: func() string {
			hostname := os.Getenv("HOSTNAME")
			if hostname == "" {
				slog.Error("HOSTNAME is not set")
				os.Exit(1)
			}
			slog.Debug("env", "HOSTNAME", hostname)
			return hostname
		}(),

		jwtSecret: func() string {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				slog.Warn("JWT_SECRET is not set")
				secret = "secret"
			}
			return secret
		}(),
		jwtExpire: func() time.Duration {
			jwtExpire := os.Getenv("JWT_EXPIRE")
			if jwtExpire == "" {
				slog.Warn("JWT_EXPIRE is not set")
				jwtExpire = "168h" // 1 week
			}
			duration, err := time.ParseDuration(jwtExpire)
			if err != nil {
				slog.Error("invalid JWT_EXPIRE", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "JWT_EXPIRE", jwtExpire, "duration", duration)
			return duration
		}(),

		location: func() *time.Location {
			timezoneStr := os.Getenv("TIMEZONE")
			var loc *time.Location
			var err error
			switch timezoneStr {
			case "":
				slog.Warn("TIMEZONE is not set, using local timezone", "timezone", time.Local)
				loc = time.Local
			case "UTC":
				slog.Warn("TIMEZONE is set to UTC, using UTC timezone", "timezone", time.UTC)
				loc = time.UTC
			default:
				loc, err = time.LoadLocation(timezoneStr)
				if err != nil {
					slog.Error("invalid timezone", "timezone", timezoneStr, "error", err)
					os.Exit(1)
				}
			}
			slog.Debug("env", "TIMEZONE", timezoneStr)
			return loc
		}(),

		syncIntervalDefault: func() time.Duration {
			syncInterval := os.Getenv("SYNC_INTERVAL_DEFAULT")
			if syncInterval == "" {
				syncInterval = "5m"
			}
			duration, err := time.ParseDuration(syncInterval)
			if err != nil {
				slog.Error("invalid SYNC_INTERVAL_DEFAULT", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "SYNC_INTERVAL_DEFAULT", syncInterval, "duration", duration)
			return duration
		}(),
		globalSyncInterval: func() time.Duration {
			globalInterval := os.Getenv("GLOBAL_SYNC_INTERVAL")
			if globalInterval == "" {
				globalInterval = "15m"
			}
			duration, err := time.ParseDuration(globalInterval)
			if err != nil {
				slog.Error("invalid GLOBAL_SYNC_INTERVAL", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "GLOBAL_SYNC_INTERVAL", globalInterval, "duration", duration)
			return duration
		}(),
		metricCollectionInterval: func() time.Duration {
			metricInterval := os.Getenv("METRIC_COLLECTION_INTERVAL")
			if metricInterval == "" {
				metricInterval = "10s"
			}
			duration, err := time.ParseDuration(metricInterval)
			if err != nil {
				slog.Error("invalid METRIC_COLLECTION_INTERVAL", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "METRIC_COLLECTION_INTERVAL", metricInterval, "duration", duration)
			return duration
		}(),

		smtpHost: func() string {
			smtpHost := os.Getenv("SMTP_HOST")
			if smtpHost == "" {
				slog.Warn("SMTP_HOST is not set, cancellation mails are disabled")
			}
			slog.Debug("env", "SMTP_HOST", smtpHost)
			return smtpHost
		}(),
		smtpPort: func() string {
			smtpPort := os.Getenv("SMTP_PORT")
			if smtpPort == "" {
				smtpPort = "587"
			}
			slog.Debug("env", "SMTP_PORT", smtpPort)
			return smtpPort
		}(),
		smtpUsername: func() string {
			return os.Getenv("SMTP_USERNAME")
		}(),
		smtpPassword: func() string {
			return os.Getenv("SMTP_PASSWORD")
		}(),
		smtpFrom: func() string {
			smtpFrom := os.Getenv("SMTP_FROM")
			slog.Debug("env", "SMTP_FROM", smtpFrom)
			return smtpFrom
		}(),

		discordAppToken: func() string {
			discordAppToken := os.Getenv("DISCORD_APP_TOKEN")
			if discordAppToken == "" {
				slog.Warn("DISCORD_APP_TOKEN is not set, Discord notifications are disabled")
				return ""
			}
			slog.Debug("env", "DISCORD_APP_TOKEN", discordAppToken[0:3]+"...")
			return discordAppToken
		}(),
		discordChannelID: func() string {
			discordChannelID := os.Getenv("DISCORD_CHANNEL_ID")
			slog.Debug("env", "DISCORD_CHANNEL_ID", discordChannelID)
			return discordChannelID
		}(),
	}
}

// Get PORT env, default to 8080
func (c *Config) GetPort() string {
	return c.port
}

// Get HOSTNAME env
func (c *Config) GetHostname() string {
	return c.hostname
}

// Get JWT_SECRET env
func (c *Config) GetJWTSecret() string {
	return c.jwtSecret
}

// Get JWT_EXPIRE env
func (c *Config) GetJWTExpire() time.Duration {
	return c.jwtExpire
}

// Get TIMEZONE env
func (c *Config) GetLocation() *time.Location {
	return c.location
}

// Get SYNC_INTERVAL_DEFAULT env, default to 5m
func (c *Config) GetSyncIntervalDefault() time.Duration {
	return c.syncIntervalDefault
}

// Get GLOBAL_SYNC_INTERVAL env, default to 15m
func (c *Config) GetGlobalSyncInterval() time.Duration {
	return c.globalSyncInterval
}

// Get METRIC_COLLECTION_INTERVAL env, default to 10s
func (c *Config) GetMetricCollectionInterval() time.Duration {
	return c.metricCollectionInterval
}

// Get SMTP_HOST env, blank when mailing is disabled
func (c *Config) GetSMTPHost() string {
	return c.smtpHost
}

// Get SMTP_PORT env, default to 587
func (c *Config) GetSMTPPort() string {
	return c.smtpPort
}

// Get SMTP_USERNAME env
func (c *Config) GetSMTPUsername() string {
	return c.smtpUsername
}

// Get SMTP_PASSWORD env
func (c *Config) GetSMTPPassword() string {
	return c.smtpPassword
}

// Get SMTP_FROM env
func (c *Config) GetSMTPFrom() string {
	return c.smtpFrom
}

// Get DISCORD_APP_TOKEN env, blank when the Discord notifier is disabled
func (c *Config) GetDiscordAppToken() string {
	return c.discordAppToken
}

// Get DISCORD_CHANNEL_ID env
func (c *Config) GetDiscordChannelID() string {
	return c.discordChannelID
}
