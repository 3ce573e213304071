package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/resilience"
)

const (
	defaultQueueGroup     = "corpus-rebuilders"
	publishFlushTimeout   = 5 * time.Second
	defaultHandlerTimeout = 10 * time.Minute
)

// Queue carries corpus-changed events. Subscribers share one queue group so
// each event triggers a single rebuild per deployment.
type Queue struct {
	conn       *nats.Conn
	subject    string
	queueGroup string
	// handlerTimeout bounds one event handler once it is detached from
	// the subscription context.
	handlerTimeout time.Duration
	executor       *resilience.Executor
	logger         *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	// Broadcast delivers every event to this subscriber instead of load
	// balancing across QueueGroup members. Replicas that each hold their
	// own snapshot need it.
	Broadcast bool
	// HandlerTimeout bounds a single event handler. Defaults to ten minutes.
	HandlerTimeout     time.Duration
	ClientName         string
	ResilienceExecutor *resilience.Executor
	Logger             *slog.Logger
}

func New(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	name := options.ClientName
	if name == "" {
		name = "hybrid-qa-engine"
	}
	group := options.QueueGroup
	if group == "" && !options.Broadcast {
		group = defaultQueueGroup
	}
	if options.Broadcast {
		group = ""
	}
	handlerTimeout := options.HandlerTimeout
	if handlerTimeout <= 0 {
		handlerTimeout = defaultHandlerTimeout
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:           conn,
		subject:        subject,
		queueGroup:     group,
		handlerTimeout: handlerTimeout,
		executor:       options.ResilienceExecutor,
		logger:         logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishCorpusChanged(ctx context.Context, event domain.CorpusEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	err = q.executor.Execute(ctx, publishOperation, func(ctx context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		// FlushWithContext refuses contexts without a deadline.
		flushCtx, cancel := context.WithTimeout(ctx, publishFlushTimeout)
		defer cancel()
		if err := q.conn.FlushWithContext(flushCtx); err != nil {
			return fmt.Errorf("nats flush: %w", err)
		}
		return nil
	}, classifyPublishError)
	return wrapPublishError(err)
}

// SubscribeCorpusChanged blocks until ctx is done, then drains the
// subscription. Events that arrive after ctx is done are dropped; a handler
// already running keeps its own context, bounded by the handler timeout.
func (q *Queue) SubscribeCorpusChanged(ctx context.Context, handler func(context.Context, domain.CorpusEvent) error) error {
	onMsg := q.messageHandler(ctx, handler)

	var (
		sub *nats.Subscription
		err error
	)
	if q.queueGroup == "" {
		sub, err = q.conn.Subscribe(q.subject, onMsg)
	} else {
		sub, err = q.conn.QueueSubscribe(q.subject, q.queueGroup, onMsg)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	q.logger.Info("corpus_events_subscribed", "subject", q.subject, "queue_group", q.queueGroup)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) messageHandler(ctx context.Context, handler func(context.Context, domain.CorpusEvent) error) nats.MsgHandler {
	return func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		event, err := decodeEvent(msg.Data)
		if err != nil {
			q.logger.Warn("corpus_event_rejected", "subject", msg.Subject, "error", err)
			return
		}
		handlerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.handlerTimeout)
		defer cancel()
		if err := handler(handlerCtx, event); err != nil {
			q.logger.Error("corpus_event_failed", "source", event.Source, "reason", event.Reason, "error", err)
		}
	}
}

func encodeEvent(event domain.CorpusEvent) ([]byte, error) {
	if strings.TrimSpace(event.Source) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode corpus event", errors.New("source is required"))
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode corpus event: %w", err)
	}
	return payload, nil
}

func decodeEvent(data []byte) (domain.CorpusEvent, error) {
	var event domain.CorpusEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.CorpusEvent{}, fmt.Errorf("decode corpus event: %w", err)
	}
	if strings.TrimSpace(event.Source) == "" {
		return domain.CorpusEvent{}, errors.New("decode corpus event: source is required")
	}
	return event, nil
}
