package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/creditledger/internal/logger"
	"github.com/nkiryanov/creditledger/internal/service/expiration"
)

const (
	defaultListenAddr          = "localhost:8000"
	defaultLoggingLevel        = logger.LevelInfo
	defaultEnvironment         = logger.EnvProduction
	defaultCollaboratorTimeout = 5 * time.Second
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the credit ledger service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key the bearer tokens are signed with
	SecretKey string

	// Environment
	Environment string

	// YAML rate table. Built-in rates are used when empty
	RateTableFile string

	// External week registry. The registry table in the ledger database is used when empty
	WeekRegistryAddr string

	// Redis for the cluster wide sweep lock. Every instance sweeps when empty
	RedisURL string

	SweepInterval time.Duration
	SweepWorkers  int
	SweepBatch    int

	// Deadline of a single week registry call inside a ledger transaction
	CollaboratorTimeout time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:            defaultLoggingLevel,
		ListenAddr:          defaultListenAddr,
		Environment:         defaultEnvironment,
		SweepInterval:       expiration.DefaultInterval,
		SweepWorkers:        expiration.DefaultCountWorkers,
		SweepBatch:          expiration.DefaultBatchSize,
		CollaboratorTimeout: defaultCollaboratorTimeout,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			v, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = v
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			v, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = v
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":           setString(&c.ListenAddr),
		"DATABASE_URI":          setString(&c.DatabaseDSN),
		"SECRET_KEY":            setString(&c.SecretKey),
		"LOG_LEVEL":             setString(&c.LogLevel),
		"ENVIRONMENT":           setString(&c.Environment),
		"RATE_TABLE_FILE":       setString(&c.RateTableFile),
		"WEEK_REGISTRY_ADDRESS": setString(&c.WeekRegistryAddr),
		"REDIS_URL":             setString(&c.RedisURL),
		"SWEEP_INTERVAL":        setDuration(&c.SweepInterval),
		"SWEEP_WORKERS":         setInt(&c.SweepWorkers),
		"SWEEP_BATCH":           setInt(&c.SweepBatch),
		"COLLABORATOR_TIMEOUT":  setDuration(&c.CollaboratorTimeout),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("creditledger", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.RateTableFile, "rate-table", "r", c.RateTableFile, "YAML rate table file")
	fs.StringVarP(&c.WeekRegistryAddr, "week-registry", "w", c.WeekRegistryAddr, "Week registry service address")
	fs.StringVar(&c.RedisURL, "redis", c.RedisURL, "Redis URL for the expiration sweep lock")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "Expiration sweep interval")
	fs.IntVar(&c.SweepWorkers, "sweep-workers", c.SweepWorkers, "Expiration sweep workers")
	fs.IntVar(&c.SweepBatch, "sweep-batch", c.SweepBatch, "Deposits expired per sweep at most")
	fs.DurationVar(&c.CollaboratorTimeout, "collaborator-timeout", c.CollaboratorTimeout, "Week registry call timeout")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	switch {
	case c.DatabaseDSN == "":
		return errors.New("database DSN is required")
	case c.SecretKey == "":
		return errors.New("secret key is required")
	case c.SweepInterval <= 0:
		return errors.New("sweep interval must be positive")
	case c.SweepWorkers <= 0:
		return errors.New("sweep workers must be positive")
	case c.SweepBatch <= 0:
		return errors.New("sweep batch must be positive")
	case c.CollaboratorTimeout <= 0:
		return errors.New("collaborator timeout must be positive")
	}
	return nil
}
