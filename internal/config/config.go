package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	AccessSecret string
}

type StorageConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	UseSSL     bool
	PresignTTL time.Duration
	MaxSizeMB  int64
}

type SMTPConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	From          string
	SkipTLSVerify bool
}

type NotifyConfig struct {
	Enabled     bool
	AdminEmails []string
	Timeout     time.Duration
	Workers     int
	QueueSize   int
}

type WorkflowConfig struct {
	RecentActivityLimit int
}

type Config struct {
	Environment string
	LogLevel    string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Storage     StorageConfig
	SMTP        SMTPConfig
	Notify      NotifyConfig
	Workflow    WorkflowConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")

	v.AutomaticEnv()

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Storage: StorageConfig{
			Endpoint:   v.GetString("STORAGE_ENDPOINT"),
			AccessKey:  v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey:  v.GetString("STORAGE_SECRET_KEY"),
			Bucket:     v.GetString("STORAGE_BUCKET"),
			UseSSL:     v.GetBool("STORAGE_USE_SSL"),
			PresignTTL: v.GetDuration("STORAGE_PRESIGN_TTL"),
			MaxSizeMB:  v.GetInt64("UPLOAD_MAX_SIZE_MB"),
		},
		SMTP: SMTPConfig{
			Host:          v.GetString("SMTP_HOST"),
			Port:          v.GetInt("SMTP_PORT"),
			User:          v.GetString("SMTP_USER"),
			Password:      v.GetString("SMTP_PASS"),
			From:          v.GetString("SMTP_FROM"),
			SkipTLSVerify: v.GetBool("SMTP_SKIP_TLS_VERIFY"),
		},
		Notify: NotifyConfig{
			Enabled:     v.GetBool("NOTIFY_ENABLED"),
			AdminEmails: splitList(v.GetString("NOTIFY_ADMIN_EMAILS")),
			Timeout:     v.GetDuration("NOTIFY_TIMEOUT"),
			Workers:     v.GetInt("NOTIFY_WORKERS"),
			QueueSize:   v.GetInt("NOTIFY_QUEUE_SIZE"),
		},
		Workflow: WorkflowConfig{
			RecentActivityLimit: v.GetInt("RECENT_ACTIVITY_LIMIT"),
		},
	}

	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 7090
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "ip-documents"
	}
	if cfg.Storage.PresignTTL <= 0 {
		cfg.Storage.PresignTTL = 24 * time.Hour
	}
	if cfg.Storage.MaxSizeMB <= 0 {
		cfg.Storage.MaxSizeMB = 20
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.Notify.Timeout <= 0 {
		cfg.Notify.Timeout = 10 * time.Second
	}
	if cfg.Notify.Workers <= 0 {
		cfg.Notify.Workers = 2
	}
	if cfg.Notify.QueueSize <= 0 {
		cfg.Notify.QueueSize = 100
	}
	if cfg.Workflow.RecentActivityLimit <= 0 {
		cfg.Workflow.RecentActivityLimit = 20
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MailEnabled reports whether notifications should go out over SMTP.
func (c *Config) MailEnabled() bool {
	return c.Notify.Enabled && c.SMTP.Host != "" && c.SMTP.From != ""
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Storage.Endpoint != "" && (cfg.Storage.AccessKey == "" || cfg.Storage.SecretKey == "") {
		return fmt.Errorf("STORAGE_ACCESS_KEY and STORAGE_SECRET_KEY are required when STORAGE_ENDPOINT is set")
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
