package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/strata/internal/logging"
	"github.com/jacentio/strata/observability"
	"github.com/jacentio/strata/store"
	"github.com/jacentio/strata/store/dynamo"
	"github.com/jacentio/strata/store/memory"
	"github.com/jacentio/strata/store/redis"
)

// Logger builds the process logger from the log settings.
func (c *Config) Logger(component string) *slog.Logger {
	return logging.New(logging.Config{
		Level:     logging.ParseLevel(c.Log.Level),
		Format:    logging.ParseFormat(c.Log.Format),
		Component: component,
	})
}

// DynamoClientConfig converts the dynamo settings to a client config.
func (c *Config) DynamoClientConfig() dynamo.Config {
	cfg := dynamo.DefaultConfig()
	if c.Dynamo.Table != "" {
		cfg.Table = c.Dynamo.Table
	}
	cfg.Indexes = c.Dynamo.Indexes
	cfg.RejectDuplicates = c.Dynamo.RejectDuplicates
	cfg.TestMode = c.Dynamo.TestMode
	if c.Dynamo.ScanSegments > 0 {
		cfg.ScanSegments = c.Dynamo.ScanSegments
	}
	return cfg
}

// RedisClientConfig converts the redis settings to a client config.
func (c *Config) RedisClientConfig() redis.Config {
	cfg := redis.DefaultConfig()
	if c.Redis.Addr != "" {
		cfg.Addr = c.Redis.Addr
	}
	cfg.Password = c.Redis.Password
	cfg.DB = c.Redis.DB
	if c.Redis.MaxRetries > 0 {
		cfg.MaxRetries = c.Redis.MaxRetries
	}
	cfg.TestMode = c.Redis.TestMode
	return cfg
}

// NewDynamoAPI creates a DynamoDB client from the shared AWS configuration.
// A configured endpoint points it at DynamoDB Local.
func (c *Config) NewDynamoAPI(ctx context.Context) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Dynamo.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Dynamo.Region))
	}
	if c.Dynamo.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.Dynamo.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load AWS config: %w", store.ErrConfiguration, err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if c.Dynamo.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Dynamo.Endpoint)
		}
	}), nil
}

// Open creates the configured backend client, instrumented with metrics.
func (c *Config) Open(ctx context.Context, logger *slog.Logger) (*observability.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var client store.Client
	switch c.Backend {
	case BackendDynamo:
		api, err := c.NewDynamoAPI(ctx)
		if err != nil {
			return nil, err
		}
		client = dynamo.New(api, c.DynamoClientConfig(), logger)
	case BackendRedis:
		cfg := c.RedisClientConfig()
		client = redis.New(redis.Dial(cfg), cfg, logger)
	case BackendMemory:
		client = memory.New()
	}
	return observability.Instrument(client, c.Backend), nil
}

// Registry builds a registry holding the kinds of the configured schema,
// with client as its default client.
func (c *Config) Registry(client store.Client) (*store.Registry, error) {
	registry := store.NewRegistry(store.WithClient(client))
	if c.Schema == "" {
		return registry, nil
	}
	schema, err := LoadSchema(c.Schema)
	if err != nil {
		return nil, err
	}
	if err := schema.Define(registry); err != nil {
		return nil, err
	}
	return registry, nil
}
