package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds runtime settings read from CLIMBS_* environment variables.
type Config struct {
	Port          string        `env:"CLIMBS_PORT"              envDefault:"3000"`
	DBPath        string        `env:"CLIMBS_DB_PATH"           envDefault:"climbs.db"`
	MaxOpenConns  int           `env:"CLIMBS_DB_MAX_OPEN_CONNS" envDefault:"10"`
	LogLevel      string        `env:"CLIMBS_LOG_LEVEL"         envDefault:"info"`
	LogFormat     string        `env:"CLIMBS_LOG_FORMAT"        envDefault:"text"`
	SessionTTL    time.Duration `env:"CLIMBS_SESSION_TTL"       envDefault:"8h"`
	SecureCookies bool          `env:"CLIMBS_SECURE_COOKIES"    envDefault:"false"`
	UserIDPrefix  string        `env:"CLIMBS_USER_ID_PREFIX"    envDefault:"CESLA"`
	AdminUsername string        `env:"CLIMBS_ADMIN_USERNAME"`
	AdminPassword string        `env:"CLIMBS_ADMIN_PASSWORD"`
	AdminName     string        `env:"CLIMBS_ADMIN_NAME"        envDefault:"Administrator"`

	Backup Backup `envPrefix:"CLIMBS_BACKUP_"`
}

// Backup configures nightly snapshots to S3-compatible storage. Backups stay
// off until the bucket, both keys and the passphrase are set.
type Backup struct {
	Endpoint      string `env:"ENDPOINT"`
	Bucket        string `env:"BUCKET"`
	Region        string `env:"REGION"         envDefault:"us-east-1"`
	AccessKey     string `env:"ACCESS_KEY"`
	SecretKey     string `env:"SECRET_KEY"`
	Prefix        string `env:"PREFIX"         envDefault:"climbs"`
	Passphrase    string `env:"PASSPHRASE"`
	Hour          int    `env:"HOUR"           envDefault:"2"`
	RetentionDays int    `env:"RETENTION_DAYS" envDefault:"30"`
}

// Load reads an optional .env file from the working directory, then parses
// the environment. Variables already set in the environment win over .env.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && len(files) > 0 {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("CLIMBS_PORT must not be empty"))
	}
	if c.MaxOpenConns < 1 {
		errs = append(errs, errors.New("CLIMBS_DB_MAX_OPEN_CONNS must be at least 1"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("CLIMBS_SESSION_TTL must be positive"))
	}
	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("CLIMBS_ADMIN_USERNAME and CLIMBS_ADMIN_PASSWORD must be set together"))
	}
	if c.Backup.Hour < 0 || c.Backup.Hour > 23 {
		errs = append(errs, errors.New("CLIMBS_BACKUP_HOUR must be between 0 and 23"))
	}
	if c.Backup.RetentionDays < 1 {
		errs = append(errs, errors.New("CLIMBS_BACKUP_RETENTION_DAYS must be at least 1"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
