// Package mongo bootstraps a MongoDB connection and keeps collection
// indexes in line with a declared Schema.
package mongo

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Connection wraps a connected client and its default database.
type Connection struct {
	client *mongo.Client
	db     *mongo.Database
	log    zerolog.Logger

	mu     sync.RWMutex
	schema Schema
}

type Option func(*connectOptions)

type connectOptions struct {
	log    zerolog.Logger
	client *options.ClientOptions
}

// WithLogger sets the logger used for index warnings.
func WithLogger(log zerolog.Logger) Option {
	return func(o *connectOptions) { o.log = log }
}

// WithClientOptions merges extra driver options on top of the URL.
func WithClientOptions(opts *options.ClientOptions) Option {
	return func(o *connectOptions) {
		if opts != nil {
			o.client = opts
		}
	}
}

// Connect dials the deployment and pings the primary before returning.
func Connect(ctx context.Context, s Settings, opts ...Option) (*Connection, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	s.ApplyDefaults()

	cfg := connectOptions{log: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	clientOpts := []*options.ClientOptions{
		options.Client().ApplyURI(s.DatabaseURL).SetConnectTimeout(s.ConnectTimeout),
	}
	if cfg.client != nil {
		clientOpts = append(clientOpts, cfg.client)
	}

	client, err := mongo.Connect(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	return &Connection{
		client: client,
		db:     client.Database(s.DatabaseName),
		log:    cfg.log,
		schema: Schema{},
	}, nil
}

func (c *Connection) Client() *mongo.Client { return c.client }

func (c *Connection) Database() *mongo.Database { return c.db }

// Collection returns a handle for name. Collections need not be part of the
// registered schema.
func (c *Connection) Collection(name string) *mongo.Collection {
	return c.db.Collection(name)
}

// Schema returns a copy of the last registered schema.
func (c *Connection) Schema() Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(Schema, len(c.schema))
	for k, v := range c.schema {
		out[k] = v
	}
	return out
}

func (c *Connection) Close(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongo: disconnect: %w", err)
	}
	return nil
}
