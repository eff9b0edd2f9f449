package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/lithammer/shortuuid/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Bus is an in-process pub/sub for conversation events. Publishing blocks until every
// current subscriber has acked, which keeps events in dispatch order.
type Bus struct {
	logger watermill.LoggerAdapter
	pubsub *gochannel.GoChannel
	router *message.Router

	mu       sync.Mutex
	sequence uint64
}

type BusOption func(*Bus)

func WithLogger(logger watermill.LoggerAdapter) BusOption {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithVerbose sends watermill's own logs to the global zerolog logger.
func WithVerbose(verbose bool) BusOption {
	return func(b *Bus) {
		if verbose {
			b.logger = NewZerologAdapter(log.Logger)
		}
	}
}

func NewBus(options ...BusOption) (*Bus, error) {
	ret := &Bus{
		logger: watermill.NopLogger{},
	}
	for _, o := range options {
		o(ret)
	}

	ret.pubsub = gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            16,
		BlockPublishUntilSubscriberAck: true,
	}, ret.logger)

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, errors.Wrap(err, "create router")
	}
	ret.router = router

	return ret, nil
}

type correlationIDKeyType string

const correlationIDKey correlationIDKeyType = "correlation_id"

// ContextWithCorrelationID tags every event published with ctx.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

func correlationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey).(string); ok && v != "" {
		return v
	}
	return "gen_" + shortuuid.New()
}

// PublishStateChanged stamps ev with the next sequence number and publishes it on
// TopicConversation.
func (b *Bus) PublishStateChanged(ctx context.Context, ev StateChanged) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sequence++
	ev.Sequence = b.sequence

	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal state changed event")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataSequenceNumber, strconv.FormatUint(ev.Sequence, 10))
	msg.Metadata.Set(MetadataCorrelationID, correlationIDFromContext(ctx))
	msg.Metadata.Set(MetadataConversationID, ev.ConversationID)
	msg.SetContext(ctx)

	log.Debug().
		Str("conversation", ev.ConversationID).
		Str("action", ev.Action).
		Uint64("sequence", ev.Sequence).
		Msg("publishing state change")

	if err := b.pubsub.Publish(TopicConversation, msg); err != nil {
		return errors.Wrap(err, "publish state changed event")
	}
	return nil
}

// Subscribe returns a channel of raw events. Every received message must be acked.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, TopicConversation)
}

// AddHandler registers f to run on every event once Run has started.
func (b *Bus) AddHandler(name string, f func(ev StateChanged, msg *message.Message) error) {
	b.router.AddConsumerHandler(name, TopicConversation, b.pubsub, func(msg *message.Message) error {
		ev, err := DecodeStateChanged(msg)
		if err != nil {
			log.Warn().Err(err).Str("handler", name).Msg("dropping undecodable event")
			return nil
		}
		return f(ev, msg)
	})
}

// Run blocks until the router is closed or ctx is done.
func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

func (b *Bus) Running() chan struct{} {
	return b.router.Running()
}

func (b *Bus) Close() error {
	var ret error
	if err := b.pubsub.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close pubsub")
		ret = err
	}
	if err := b.router.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close router")
		if ret == nil {
			ret = err
		}
	}
	return ret
}
