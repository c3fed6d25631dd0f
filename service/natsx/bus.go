package natsx

import (
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// Bus is the cross-process fan-out channel. One subject, plain core
// NATS, no queue group: every process must observe every change event
// and replay dispatch against its own connection registry.
type Bus struct {
	nc      *nats.Conn
	subject string
	sub     *nats.Subscription
}

type Config struct {
	Url           string
	Name          string
	Subject       string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

func Connect(cfg Config) (*Bus, error) {
	if cfg.Url == "" {
		return nil, errors.New("nats url missing")
	}
	if cfg.Subject == "" {
		return nil, errors.New("nats subject missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(cfg.Url, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "connect nats")
	}
	return &Bus{nc: nc, subject: cfg.Subject}, nil
}

func (b *Bus) Publish(data []byte) error {
	return b.nc.Publish(b.subject, data)
}

// Subscribe registers the single change-event handler. Call once.
func (b *Bus) Subscribe(handler func(data []byte)) error {
	if b.sub != nil {
		return errors.New("bus already subscribed")
	}
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return errors.Wrap(err, "subscribe")
	}
	b.sub = sub
	return nil
}

func (b *Bus) Close() error {
	if b.sub != nil {
		_ = b.sub.Drain()
		b.sub = nil
	}
	if b.nc != nil {
		return b.nc.Drain()
	}
	return nil
}
