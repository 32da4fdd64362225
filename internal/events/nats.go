package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const streamName = "photo-events"

// NATSBus publishes events to JetStream and consumes them through durable,
// manual-ack subscriptions.
type NATSBus struct {
	nc            *nats.Conn
	js            nats.JetStreamContext
	durablePrefix string
	logger        logrus.FieldLogger
}

// ConnectNATS connects to NATS and makes sure the event stream exists.
func ConnectNATS(url, clientName string, logger logrus.FieldLogger) (*NATSBus, error) {
	opts := []nats.Option{
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warnf("[NATS] disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("[NATS] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("[NATS] connection closed")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	bus := &NATSBus{nc: nc, js: js, durablePrefix: clientName, logger: logger}
	if err := bus.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("[NATS] connected and JetStream initialized")
	return bus, nil
}

func (b *NATSBus) ensureStream() error {
	if _, err := b.js.StreamInfo(streamName); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}

	_, err := b.js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{"photo_folders.*", "photos.*"},
		Storage:  nats.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
	return err
}

func (b *NATSBus) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	// The event id doubles as the JetStream dedup id.
	if _, err := b.js.Publish(string(e.Type), data, nats.MsgId(e.ID), nats.Context(ctx)); err != nil {
		b.logger.Warnf("[NATS] publish failed subject=%s err=%v", e.Type, err)
		return err
	}
	return nil
}

func (b *NATSBus) Subscribe(t Type, h Handler) (Unsubscribe, error) {
	durable := b.durablePrefix + "-" + strings.ReplaceAll(string(t), ".", "-")
	sub, err := b.js.Subscribe(string(t), func(msg *nats.Msg) {
		var e Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			b.logger.Warnf("[NATS] %s: invalid payload: %v", t, err)
			// A malformed payload will never decode; drop it.
			term(msg, b.logger)
			return
		}
		if err := h(context.Background(), e); err != nil {
			b.logger.Warnf("[NATS] %s: handler failed: %v", t, err)
			nak(msg, b.logger)
			return
		}
		ack(msg, b.logger)
	}, nats.Durable(durable), nats.ManualAck())
	if err != nil {
		return nil, err
	}
	b.logger.Infof("[NATS] subscribed subject=%s durable=%s", t, durable)
	return sub.Unsubscribe, nil
}

func (b *NATSBus) Close() error {
	return b.nc.Drain()
}

func ack(msg *nats.Msg, logger logrus.FieldLogger) {
	if err := msg.Ack(); err != nil {
		logger.Warnf("[NATS] failed to ack message: %v", err)
	}
}

func nak(msg *nats.Msg, logger logrus.FieldLogger) {
	if err := msg.Nak(); err != nil {
		logger.Warnf("[NATS] failed to nak message: %v", err)
	}
}

func term(msg *nats.Msg, logger logrus.FieldLogger) {
	if err := msg.Term(); err != nil {
		logger.Warnf("[NATS] failed to term message: %v", err)
	}
}
