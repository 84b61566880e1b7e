package lgcp

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishFit() *FitResult {
	return &FitResult{
		Effects:   map[string]Marginal{"intercept": {Mean: 1.5, SD: 0.2, Lower: 1.1, Upper: 1.9}},
		Hyper:     map[string]Marginal{HyperRangeKey: {Mean: 0.4, SD: 0.05}},
		Converged: true,
	}
}

func TestPublisher_NilClientIsDisabled(t *testing.T) {
	p := NewPublisher(nil, "")
	assert.NoError(t, p.PublishFit(publishFit()))
	assert.NoError(t, p.PublishResiduals(nil))
}

func TestPublisher_DisconnectedClient(t *testing.T) {
	client := NewMockClient() // never connected
	p := NewPublisher(client, "")

	err := p.PublishFit(publishFit())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
	assert.Empty(t, client.GetPublishedMessages())
}

func TestPublisher_PublishFitTopicsAndPayload(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	p := NewPublisher(client, "")

	require.NoError(t, p.PublishFit(publishFit()))

	msgs := client.GetPublishedMessages()
	// One topic per effect, one per hyperparameter, plus the combined doc.
	require.Len(t, msgs, 3)

	byTopic := make(map[string]MockMessage, len(msgs))
	for _, m := range msgs {
		byTopic[m.Topic] = m
		assert.True(t, m.Retain, "summaries are retained for late subscribers")
		assert.Equal(t, byte(0), m.QoS)
	}
	require.Contains(t, byTopic, "punctamesh/fit/intercept")
	require.Contains(t, byTopic, "punctamesh/fit/range")
	require.Contains(t, byTopic, "punctamesh/fit")

	var summary map[string]float64
	require.NoError(t, json.Unmarshal(byTopic["punctamesh/fit/intercept"].Payload, &summary))
	assert.Equal(t, map[string]float64{"mean": 1.5, "sd": 0.2, "q025": 1.1, "q975": 1.9}, summary)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(byTopic["punctamesh/fit"].Payload, &doc))
	assert.Contains(t, doc, "effects")
	assert.Contains(t, doc, "hyperparameters")
}

func TestPublisher_CustomPrefix(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	p := NewPublisher(client, "lab/scope1")

	require.NoError(t, p.PublishResiduals([]ResidualCell{}))
	msgs := client.GetPublishedMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "lab/scope1/residuals", msgs[0].Topic)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &payload))
	assert.Contains(t, payload, "cells")
	assert.Contains(t, payload, "timestamp")
}

func TestPublisher_PublishErrorPropagates(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	client.SetPublishError(errors.New("broker rejected"))
	p := NewPublisher(client, "")

	err := p.PublishFit(publishFit())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker rejected")
}
