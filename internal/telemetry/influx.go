// Package telemetry writes dispatch results and state transitions to InfluxDB.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog/log"
)

const pingTimeout = 10 * time.Second

// ErrConnectionFailed is returned when the server cannot be reached on startup.
var ErrConnectionFailed = errors.New("influxdb: connection failed")

// Options configures the InfluxDB connection.
type Options struct {
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     uint
	FlushInterval time.Duration
}

// Client owns the InfluxDB client and its non-blocking write API.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	done     chan struct{}
}

// Connect pings the server and prepares a batched write API.
func Connect(opts Options) (*Client, error) {
	batch := opts.BatchSize
	if batch == 0 {
		batch = 100
	}
	flush := opts.FlushInterval
	if flush <= 0 {
		flush = 10 * time.Second
	}

	client := influxdb2.NewClientWithOptions(
		opts.URL,
		opts.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batch).
			SetFlushInterval(uint(flush.Milliseconds())),
	)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(opts.Org, opts.Bucket),
		done:     make(chan struct{}),
	}
	go c.logErrors()

	log.Info().Str("url", opts.URL).Str("bucket", opts.Bucket).Msg("InfluxDB connected")
	return c, nil
}

func (c *Client) logErrors() {
	defer close(c.done)
	for err := range c.writeAPI.Errors() {
		log.Warn().Err(err).Msg("InfluxDB write failed")
	}
}

// WritePoint queues a point for the next batch.
func (c *Client) WritePoint(p *write.Point) {
	c.writeAPI.WritePoint(p)
}

// Close flushes pending points and closes the client.
func (c *Client) Close() error {
	c.writeAPI.Flush()
	c.client.Close()
	log.Info().Msg("InfluxDB closed")
	return nil
}
