package natsjetstream

import (
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

type Config struct {
	URL           string
	MaxReconnect  int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// ConsumerConfig describes one durable pull consumer. A zero AckPolicy
// means explicit acks. Backoff spaces out redeliveries of naked messages
// and needs fewer entries than MaxDeliver.
type ConsumerConfig struct {
	StreamName    string
	ConsumerName  string
	Durable       string
	FilterSubject string
	AckPolicy     jetstream.AckPolicy
	AckWait       time.Duration
	Backoff       []time.Duration
	MaxDeliver    int
	MaxAckPending int
}
