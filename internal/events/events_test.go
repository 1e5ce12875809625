package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberTechArmor/NEON-sub002/internal/config"
)

func TestNewWithoutBrokersIsNop(t *testing.T) {
	p := New(config.KafkaConfig{Topic: "x"})
	_, ok := p.(NopPublisher)
	require.True(t, ok)
	assert.NoError(t, p.Publish(context.Background(), Event{Type: TypeCallEnded}))
	assert.NoError(t, p.Close())
}

func TestEncode(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	msg, err := encode(Event{Type: TypeMessageSent, Key: "c1", Payload: map[string]string{"id": "m1"}, At: at})
	require.NoError(t, err)

	assert.Equal(t, []byte("c1"), msg.Key)
	assert.JSONEq(t, `{"type":"message.sent","at":1700000000000,"payload":{"id":"m1"}}`, string(msg.Value))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "message.sent", string(msg.Headers[0].Value))
}
