package config

import (
	"fmt"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMemoryImageStore configures the in-memory image store
func WithMemoryImageStore() Option {
	return func(c *ServerConfig) error {
		c.ImageStore = ImageStoreConfig{Type: "memory"}
		return nil
	}
}

// WithFilesystemImageStore configures a filesystem image store
func WithFilesystemImageStore(baseDir, urlPrefix string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.ImageStore = ImageStoreConfig{
			Type:      "fs",
			BaseDir:   baseDir,
			URLPrefix: urlPrefix,
		}
		return nil
	}
}

// WithS3ImageStore configures an S3 image store
func WithS3ImageStore(bucket, region string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if region == "" {
			region = "us-east-1"
		}
		c.ImageStore.Type = "s3"
		c.ImageStore.Bucket = bucket
		c.ImageStore.Region = region
		return nil
	}
}

// WithS3Credentials sets static credentials for the S3 image store
func WithS3Credentials(accessKeyID, secretAccessKey string) Option {
	return func(c *ServerConfig) error {
		c.ImageStore.AccessKeyID = accessKeyID
		c.ImageStore.SecretAccessKey = secretAccessKey
		return nil
	}
}

// WithS3Endpoint sets a custom endpoint and path-style addressing for
// S3-compatible services
func WithS3Endpoint(endpoint string, pathStyle bool) Option {
	return func(c *ServerConfig) error {
		c.ImageStore.Endpoint = endpoint
		c.ImageStore.UsePathStyle = pathStyle
		return nil
	}
}

// WithJWTSecret enables verified acting-user tokens
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithEventLogging toggles the logging event sink
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}
