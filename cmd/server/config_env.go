package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/newsroomkit/editorial/pkg/editorial"
	"github.com/newsroomkit/editorial/pkg/editorial/config"
)

// envConfig is the environment surface of the server binary.
//
//	PORT            - server port (default "8080")
//	ENVIRONMENT     - development, production, testing
//	DATABASE_URL    - "memory" or a postgresql:// connection string
//	DB_SCHEMA       - postgres schema (default "editorial")
//	IMAGE_STORE_URL - "memory://", "file:///path", or "s3://bucket?region=..&endpoint=.."
//	JWT_SECRET      - enables verified acting-user tokens when set
//	SLOTS_FILE      - JSON file with the static layout slot catalog
//	EVENT_LOGGING   - log lifecycle events (default true)
type envConfig struct {
	Port          string `env:"PORT" env-default:"8080"`
	Environment   string `env:"ENVIRONMENT" env-default:"development"`
	DatabaseURL   string `env:"DATABASE_URL" env-default:""`
	DBSchema      string `env:"DB_SCHEMA" env-default:"editorial"`
	ImageStoreURL string `env:"IMAGE_STORE_URL" env-default:"memory://"`
	JWTSecret     string `env:"JWT_SECRET" env-default:""`
	SlotsFile     string `env:"SLOTS_FILE" env-default:""`
	EventLogging  bool   `env:"EVENT_LOGGING" env-default:"true"`
}

// loadServerConfig reads the environment and converts it to config options.
func loadServerConfig() (*config.ServerConfig, error) {
	var env envConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	opts := []config.Option{
		config.WithPort(env.Port),
		config.WithEnvironment(env.Environment),
		config.WithDatabaseSchema(env.DBSchema),
		config.WithEventLogging(env.EventLogging),
	}

	switch {
	case env.DatabaseURL == "" || env.DatabaseURL == "memory":
		opts = append(opts, config.WithDatabase("memory", ""))
	case strings.HasPrefix(env.DatabaseURL, "postgresql://"),
		strings.HasPrefix(env.DatabaseURL, "postgres://"):
		opts = append(opts, config.WithDatabase("postgres", env.DatabaseURL))
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", env.DatabaseURL)
	}

	storeOpt, err := imageStoreOption(env.ImageStoreURL)
	if err != nil {
		return nil, err
	}
	opts = append(opts, storeOpt)

	if env.JWTSecret != "" {
		opts = append(opts, config.WithJWTSecret(env.JWTSecret))
	}

	return config.Load(opts...)
}

// imageStoreOption parses the IMAGE_STORE_URL scheme into a config option.
func imageStoreOption(storeURL string) (config.Option, error) {
	switch {
	case storeURL == "" || storeURL == "memory" || storeURL == "memory://":
		return config.WithMemoryImageStore(), nil

	case strings.HasPrefix(storeURL, "file://"):
		path := strings.TrimPrefix(storeURL, "file://")
		if path == "" {
			return nil, fmt.Errorf("filesystem path cannot be empty in IMAGE_STORE_URL")
		}
		return config.WithFilesystemImageStore(path, os.Getenv("IMAGE_URL_PREFIX")), nil

	case strings.HasPrefix(storeURL, "s3://"):
		u, err := url.Parse(storeURL)
		if err != nil {
			return nil, fmt.Errorf("invalid IMAGE_STORE_URL: %w", err)
		}
		bucket := u.Host
		if bucket == "" {
			return nil, fmt.Errorf("S3 bucket name cannot be empty in IMAGE_STORE_URL")
		}
		q := u.Query()
		region := q.Get("region")
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}

		return func(c *config.ServerConfig) error {
			if err := config.WithS3ImageStore(bucket, region)(c); err != nil {
				return err
			}
			if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
				if err := config.WithS3Credentials(key, os.Getenv("AWS_SECRET_ACCESS_KEY"))(c); err != nil {
					return err
				}
			}
			if endpoint := q.Get("endpoint"); endpoint != "" {
				pathStyle, _ := strconv.ParseBool(q.Get("path_style"))
				if err := config.WithS3Endpoint(endpoint, pathStyle)(c); err != nil {
					return err
				}
			}
			return nil
		}, nil

	default:
		return nil, fmt.Errorf("unsupported IMAGE_STORE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", storeURL)
	}
}

// loadSlotCatalog reads the static slot catalog from SLOTS_FILE. An empty
// setting yields an empty catalog: publishes resolve nowhere and explicit
// placements are all rejected, which is the safe default.
func loadSlotCatalog(path string) (editorial.SlotCatalog, error) {
	if path == "" {
		return config.NewStaticCatalog(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read slots file: %w", err)
	}

	var slots []config.SlotDef
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, fmt.Errorf("failed to parse slots file: %w", err)
	}

	return config.NewStaticCatalog(slots), nil
}
