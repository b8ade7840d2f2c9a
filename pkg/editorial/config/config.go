package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/newsroomkit/editorial/pkg/editorial"
	"github.com/newsroomkit/editorial/pkg/editorial/repo/memory"
	repopg "github.com/newsroomkit/editorial/pkg/editorial/repo/postgres"
	fsstorage "github.com/newsroomkit/editorial/pkg/editorial/storage/fs"
	memorystorage "github.com/newsroomkit/editorial/pkg/editorial/storage/memory"
	s3storage "github.com/newsroomkit/editorial/pkg/editorial/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: "memory",
		DBSchema:     "editorial",
		ImageStore: ImageStoreConfig{
			Type: "memory",
		},
		EnableEventLogging: true,
	}
}

// ServerConfig represents server configuration for the editorial service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: editorial)

	// Image storage configuration
	ImageStore ImageStoreConfig

	// JWT secret for verified acting-user tokens. Empty means the X-User-ID
	// header is trusted as-is.
	JWTSecret string

	// Server options
	EnableEventLogging bool
}

// ImageStoreConfig represents configuration for the image store backend
type ImageStoreConfig struct {
	Type string // "memory", "fs", "s3"

	// fs options
	BaseDir   string
	URLPrefix string

	// s3 options
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	UsePathStyle    bool
	PresignDuration int
	CreateBucket    bool
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.ImageStore.Type {
	case "memory":
	case "fs":
		if c.ImageStore.BaseDir == "" {
			return errors.New("image store base_dir is required for fs")
		}
	case "s3":
		if c.ImageStore.Bucket == "" {
			return errors.New("image store bucket is required for s3")
		}
	default:
		return fmt.Errorf("unsupported image store type: %s", c.ImageStore.Type)
	}

	return nil
}

// BuildService creates a Service instance from the server configuration. The
// slot catalog is an external collaborator and is passed in by the caller.
func (c *ServerConfig) BuildService(catalog editorial.SlotCatalog) (editorial.Service, error) {
	var options []editorial.Option

	repo, err := c.BuildRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	options = append(options, editorial.WithRepository(repo))
	options = append(options, editorial.WithSlotCatalog(catalog))

	if c.EnableEventLogging {
		options = append(options, editorial.WithEventSink(editorial.NewLoggingEventSink(nil)))
	} else {
		options = append(options, editorial.WithEventSink(editorial.NewNoopEventSink()))
	}

	return editorial.New(options...)
}

// BuildRepository creates a Repository based on the configuration
func (c *ServerConfig) BuildRepository() (editorial.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, errors.New("database_url is required for postgres")
		}
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// BuildImageStore creates the configured ImageStore backend
func (c *ServerConfig) BuildImageStore() (editorial.ImageStore, error) {
	switch c.ImageStore.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir:   c.ImageStore.BaseDir,
			URLPrefix: c.ImageStore.URLPrefix,
		})

	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 c.ImageStore.Region,
			Bucket:                 c.ImageStore.Bucket,
			AccessKeyID:            c.ImageStore.AccessKeyID,
			SecretAccessKey:        c.ImageStore.SecretAccessKey,
			Endpoint:               c.ImageStore.Endpoint,
			UsePathStyle:           c.ImageStore.UsePathStyle,
			PresignDuration:        c.ImageStore.PresignDuration,
			CreateBucketIfNotExist: c.ImageStore.CreateBucket,
		})

	default:
		return nil, fmt.Errorf("unsupported image store type: %s", c.ImageStore.Type)
	}
}

// PingPostgres verifies connectivity to Postgres and optionally sets
// search_path for the session. It fails if the schema (when provided) does
// not exist.
func PingPostgres(databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
