package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/config"
)

func TestEncode(t *testing.T) {
	messages, err := encode([]Event{
		{Key: "q1", Value: map[string]any{"results": 3}},
		{Key: "q2", Value: "plain"},
	})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, []byte("q1"), messages[0].Key)
	assert.JSONEq(t, `{"results":3}`, string(messages[0].Value))
	assert.Equal(t, `"plain"`, string(messages[1].Value))
	require.Len(t, messages[0].Headers, 1)
	assert.Equal(t, "application/json", string(messages[0].Headers[0].Value))

	_, err = encode([]Event{{Key: "bad", Value: make(chan int)}})
	assert.Error(t, err)
}

func TestPingWithoutBrokers(t *testing.T) {
	p := NewProducer(config.KafkaConfig{Topic: "query-events"})
	defer p.Close()
	assert.Error(t, p.Ping(context.Background()))
}

func TestPingUnreachable(t *testing.T) {
	p := NewProducer(config.KafkaConfig{Brokers: []string{"127.0.0.1:1"}, Topic: "query-events"})
	defer p.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, p.Ping(ctx))
}
