package lgcp

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher pushes fit summaries and residual tables to MQTT so a
// dashboard can follow long analyses live. Publishing is best-effort and
// entirely optional: a nil client disables it.
type Publisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	retain bool
}

// NewPublisher creates a summary publisher. If client is nil, publishing
// is disabled (for testing and for runs without a broker).
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "punctamesh"
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		qos:    0,    // summaries are fire and forget
		retain: true, // retain the latest state for late subscribers
	}
}

// PublishFit publishes each effect and hyperparameter summary to its own
// topic (<prefix>/fit/<name>) plus the whole marginals document to
// <prefix>/fit.
func (p *Publisher) PublishFit(fit *FitResult) error {
	if p.client == nil {
		return nil
	}
	if !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	for name, m := range fit.Effects {
		if err := p.publishJSON(fmt.Sprintf("%s/fit/%s", p.prefix, name), summaryJSON{Mean: m.Mean, SD: m.SD, Q025: m.Lower, Q975: m.Upper}); err != nil {
			return err
		}
	}
	for name, m := range fit.Hyper {
		if err := p.publishJSON(fmt.Sprintf("%s/fit/%s", p.prefix, name), summaryJSON{Mean: m.Mean, SD: m.SD, Q025: m.Lower, Q975: m.Upper}); err != nil {
			return err
		}
	}

	doc, err := MarshalMarginals(fit)
	if err != nil {
		return fmt.Errorf("marshaling fit summary: %w", err)
	}
	return p.publishRaw(p.prefix+"/fit", doc)
}

// PublishResiduals publishes the residual cell table to <prefix>/residuals.
func (p *Publisher) PublishResiduals(cells []ResidualCell) error {
	if p.client == nil {
		return nil
	}
	if !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	return p.publishJSON(p.prefix+"/residuals", map[string]any{
		"cells":     cells,
		"timestamp": time.Now().Unix(),
	})
}

func (p *Publisher) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling payload for %s: %w", topic, err)
	}
	return p.publishRaw(topic, payload)
}

func (p *Publisher) publishRaw(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	log.Printf("Published %d bytes to %s", len(payload), topic)
	return nil
}
