// Package publisher announces completed syncs to an MQTT broker so home
// automation systems can pick up new readings without polling the store.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/sparks1372/octopus-consumption-exporter/internal/config"
	"github.com/sparks1372/octopus-consumption-exporter/internal/models"
)

const publishTimeout = 10 * time.Second

// client is the subset of mqtt.Client the publisher needs.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Publisher publishes sync summaries as retained JSON messages.
type Publisher struct {
	client      client
	topicPrefix string
}

// New connects to the configured broker.
func New(cfg config.MQTTConfig) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required when enabled")
	}

	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return newPublisher(c, cfg.TopicPrefix), nil
}

func newPublisher(c client, topicPrefix string) *Publisher {
	if topicPrefix == "" {
		topicPrefix = "octopus"
	}
	return &Publisher{
		client:      c,
		topicPrefix: strings.TrimRight(topicPrefix, "/"),
	}
}

// Topic returns the topic a series' summaries are published to.
func (p *Publisher) Topic(series models.Series) string {
	return p.topicPrefix + "/" + series.String()
}

// Notify publishes summary to the series topic and waits for the broker to
// acknowledge it or ctx to expire.
func (p *Publisher) Notify(ctx context.Context, summary models.SyncSummary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}

	token := p.client.Publish(p.Topic(summary.Series), 1, true, body)

	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publishing to %s: %w", p.Topic(summary.Series), err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("publishing to %s: timed out", p.Topic(summary.Series))
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
