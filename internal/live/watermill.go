package live

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot/pkg/logger"
)

// WatermillBus implements Bus on top of a watermill publisher/subscriber pair.
type WatermillBus struct {
	pub     message.Publisher
	sub     message.Subscriber
	closers []func() error
	logger  *logger.Logger
}

var _ Bus = (*WatermillBus)(nil)

// NewMemoryBus returns an in-process bus backed by watermill's Go channel
// pub/sub. It only reaches subscribers in the same process.
func NewMemoryBus(log *logger.Logger) *WatermillBus {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 16,
	}, log.Watermill())

	return &WatermillBus{
		pub:     pubsub,
		sub:     pubsub,
		closers: []func() error{pubsub.Close},
		logger:  log,
	}
}

// NewRedisBus returns a bus backed by Redis Streams so several gateway
// instances share change signals. Subscribers run in fan-out mode (no
// consumer group): every subscriber sees every signal.
func NewRedisBus(ctx context.Context, addr string, log *logger.Logger) (*WatermillBus, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	wlog := log.Watermill()

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, wlog)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:       client,
		Unmarshaller: marshaler,
	}, wlog)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, fmt.Errorf("failed to create redis subscriber: %w", err)
	}

	return &WatermillBus{
		pub:     pub,
		sub:     sub,
		closers: []func() error{sub.Close, pub.Close, client.Close},
		logger:  log,
	}, nil
}

// Publish sends a change signal for conversationID.
func (b *WatermillBus) Publish(ctx context.Context, conversationID string) error {
	msg := message.NewMessage(watermill.NewUUID(), []byte(conversationID))
	msg.SetContext(ctx)

	if err := b.pub.Publish(Topic(conversationID), msg); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

// Subscribe listens for change signals for conversationID.
func (b *WatermillBus) Subscribe(ctx context.Context, conversationID string) (<-chan struct{}, error) {
	in, err := b.sub.Subscribe(ctx, Topic(conversationID))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	sig := NewSignal()
	go func() {
		defer sig.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				msg.Ack()
				sig.Notify()
			}
		}
	}()

	return sig.C(), nil
}

// Close shuts down the publisher, subscriber and any client connection.
func (b *WatermillBus) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		b.logger.Warn("live bus closed with errors", zap.Errors("errors", errs))
	}
	return errors.Join(errs...)
}
