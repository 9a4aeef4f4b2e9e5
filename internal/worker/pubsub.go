package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types carried in JobMessage.JobType.
const (
	JobCatalogReload = "catalog_reload"
	JobCacheWarm     = "cache_warm"
	JobHealthCheck   = "health_check"
)

// Errors returned by Dispatcher.Process.
var (
	// ErrMalformedMessage marks a message body that is not a JobMessage.
	ErrMalformedMessage = errors.New("malformed job message")
	// ErrUnknownJob marks a job type without a handler.
	ErrUnknownJob = errors.New("unknown job type")
)

// JobMessage is the body of a job message.
type JobMessage struct {
	JobType string `json:"job_type"`
	// PurgeOnly skips the catalog load of a catalog_reload job.
	PurgeOnly bool `json:"purge_only,omitempty"`
}

// Pinger checks connectivity to the graph engine.
type Pinger interface {
	Ping(ctx context.Context) error
}

// UnavailableLister reports upstreams whose circuit is open.
type UnavailableLister interface {
	Unavailable() []string
}

// DispatcherConfig holds the job handlers.
type DispatcherConfig struct {
	Reloader *Reloader
	Warmer   *WarmJob
	// Cache is purged directly by purge-only reload jobs (optional).
	Cache CachePurger
	// Graph is pinged by health checks (optional).
	Graph Pinger
	// Registry is consulted by health checks (optional).
	Registry UnavailableLister
	Logger   zerolog.Logger
}

// Dispatcher routes job messages to their handlers.
type Dispatcher struct {
	cfg    DispatcherConfig
	logger zerolog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{cfg: cfg, logger: cfg.Logger}
}

// Process decodes and runs one job.
func (d *Dispatcher) Process(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	switch msg.JobType {
	case JobCatalogReload:
		return d.handleCatalogReload(ctx, msg)
	case JobCacheWarm:
		return d.handleCacheWarm(ctx)
	case JobHealthCheck:
		return d.handleHealthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

func (d *Dispatcher) handleCatalogReload(ctx context.Context, msg JobMessage) error {
	if msg.PurgeOnly {
		if d.cfg.Cache != nil {
			d.cfg.Cache.PurgeCache()
			d.logger.Info().Msg("edge cache purged")
		}
		return nil
	}
	if d.cfg.Reloader == nil {
		return errors.New("catalog reload is not configured")
	}
	_, err := d.cfg.Reloader.Reload(ctx)
	return err
}

func (d *Dispatcher) handleCacheWarm(ctx context.Context) error {
	if d.cfg.Warmer == nil {
		return errors.New("cache warm is not configured")
	}
	result := d.cfg.Warmer.Run(ctx)

	// Consider it successful if at least half of the targets were warmed.
	if result.Failed > result.Successful {
		return fmt.Errorf("too many warm failures: %d/%d", result.Failed, result.Total)
	}
	return nil
}

func (d *Dispatcher) handleHealthCheck(ctx context.Context) error {
	d.logger.Debug().Msg("running health check")

	if d.cfg.Graph != nil {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := d.cfg.Graph.Ping(ctx); err != nil {
			return fmt.Errorf("graph ping: %w", err)
		}
	}

	if d.cfg.Registry != nil {
		if open := d.cfg.Registry.Unavailable(); len(open) > 0 {
			return fmt.Errorf("circuits open: %v", open)
		}
	}

	d.logger.Debug().Msg("health check passed")
	return nil
}

// PubSubHandler receives job messages from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Reloads are heavy, so only a few run at once.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 4
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	if ack := h.process(ctx, logger, msg.Data); ack {
		logger.Info().Dur("duration", time.Since(startTime)).Msg("job completed")
		msg.Ack()
		return
	}
	msg.Nack()
}

// process runs the job and reports whether the message should be acked.
// Malformed and unknown messages are acked so they are not redelivered.
func (h *PubSubHandler) process(ctx context.Context, logger zerolog.Logger, data []byte) bool {
	err := h.dispatcher.Process(ctx, data)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrMalformedMessage), errors.Is(err, ErrUnknownJob):
		logger.Warn().Err(err).Msg("dropping message")
		return true
	case errors.Is(err, ErrReloadInProgress):
		logger.Info().Msg("reload already running, dropping duplicate")
		return true
	default:
		logger.Error().Err(err).Msg("job failed")
		return false
	}
}
