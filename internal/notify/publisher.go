package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-fuel/internal/models"
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

// MQTTClient is the part of mqtt.Client the publisher uses.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher sends notices to <prefix>/notifications/<type> at QoS 1.
type MQTTPublisher struct {
	client  MQTTClient
	prefix  string
	timeout time.Duration
}

func NewMQTTPublisher(client MQTTClient, prefix string, timeout time.Duration) *MQTTPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTPublisher{client: client, prefix: strings.TrimSuffix(prefix, "/"), timeout: timeout}
}

// Topic returns the topic a notice is published on.
func (p *MQTTPublisher) Topic(n models.Notification) string {
	return fmt.Sprintf("%s/notifications/%s", p.prefix, n.Type)
}

func (p *MQTTPublisher) Publish(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	token := p.client.Publish(p.Topic(n), 1, false, payload)
	if !token.WaitTimeout(timeout) {
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

// ConnectMQTT opens a client to the broker.
func ConnectMQTT(broker, clientID string, timeout time.Duration) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connect to %s: timed out after %s", broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, err)
	}
	return client, nil
}

// LogPublisher writes notices to the log when no broker is configured.
type LogPublisher struct {
	Log *logrus.Entry
}

func (p LogPublisher) Publish(ctx context.Context, n models.Notification) error {
	p.Log.WithFields(logrus.Fields{
		"event_id":    n.EventID,
		"type":        n.Type,
		"truck":       n.TruckNumber,
		"destination": n.Destination,
		"suffix":      n.TruckSuffix,
	}).Info("Deficiency notification")
	return nil
}
