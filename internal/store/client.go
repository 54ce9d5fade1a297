package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultSweepInterval  = time.Minute
	defaultIndexQueueSize = 256
)

var (
	errMissingDatabase = errors.New("store: database handle is required")
	errClientClosed    = errors.New("store: client is closed")
	noOpLogger         = zap.NewNop()
)

const (
	opClientNew         = "store.client.new"
	opPut               = "store.put"
	opPutIfAbsent       = "store.put_if_absent"
	opGetByKey          = "store.get_by_key"
	opConditionalUpdate = "store.conditional_update"
	opConditionalDelete = "store.conditional_delete"
	opQueryByIndex      = "store.query_by_index"
)

// ClientConfig describes the dependencies for the entity store client.
type ClientConfig struct {
	Database *gorm.DB
	// Indexes declares every secondary index up front; queries against an
	// undeclared index fail. Declarations cannot change after construction.
	Indexes []IndexDefinition
	Clock   func() time.Time
	Logger  *zap.Logger
	// SweepInterval controls how often expired items are reaped. TTL expiry
	// is best-effort; reads additionally filter expired rows.
	SweepInterval time.Duration
}

// Client exposes conditional read/write/query operations over the single
// heterogeneous entity collection. Secondary index maintenance runs on a
// background worker, so index-driven queries are eventually consistent with
// base-row writes.
type Client struct {
	db      *gorm.DB
	indexes map[string]IndexDefinition
	clock   func() time.Time
	logger  *zap.Logger

	jobs     chan indexJob
	workerWG sync.WaitGroup
	sweepWG  sync.WaitGroup
	stop     chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewClient constructs the store client and starts the index worker and the
// TTL sweeper.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("%s: %w", opClientNew, errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	indexes := make(map[string]IndexDefinition, len(cfg.Indexes))
	for _, definition := range cfg.Indexes {
		if definition.Name == "" || definition.PartitionAttribute == "" || definition.SortAttribute == "" {
			return nil, fmt.Errorf("%s: index %q must declare name, partition and sort attributes", opClientNew, definition.Name)
		}
		if _, exists := indexes[definition.Name]; exists {
			return nil, fmt.Errorf("%s: duplicate index %q", opClientNew, definition.Name)
		}
		indexes[definition.Name] = definition
	}

	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}

	client := &Client{
		db:      cfg.Database,
		indexes: indexes,
		clock:   clock,
		logger:  logger,
		jobs:    make(chan indexJob, defaultIndexQueueSize),
		stop:    make(chan struct{}),
	}

	client.workerWG.Add(1)
	go client.runIndexWorker()

	client.sweepWG.Add(1)
	go client.runSweeper(sweepInterval)

	return client, nil
}

// Barrier blocks until every index job enqueued before the call has been
// applied. Intended for tests and callers that must observe their own writes
// through an index.
func (c *Client) Barrier(ctx context.Context) error {
	done := make(chan struct{})
	if err := c.enqueue(indexJob{barrier: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the index queue and stops the background workers. The client
// rejects new writes afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.jobs)
	c.workerWG.Wait()
	close(c.stop)
	c.sweepWG.Wait()
	return nil
}

func (c *Client) enqueue(job indexJob) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	c.jobs <- job
	return nil
}

func (c *Client) now() time.Time {
	return c.clock().UTC()
}

func (c *Client) expired(expiresAt *int64, now time.Time) bool {
	return expiresAt != nil && *expiresAt <= now.Unix()
}
