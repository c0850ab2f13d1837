package events

import (
	"encoding/json"
	"strings"
	"testing"

	"creditengine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDropsWhenQueueFull(t *testing.T) {
	d := NewDispatcher(nil, "credit.notification", 1)

	assert.True(t, d.Publish(Event{Type: model.EventGiftReceived, UserID: 1}))
	assert.False(t, d.Publish(Event{Type: model.EventGiftReceived, UserID: 2}))

	evt := <-d.queue
	assert.Equal(t, int64(1), evt.UserID)
	assert.False(t, evt.Timestamp.IsZero())
}

func TestNewOutboxMessage(t *testing.T) {
	msg, err := NewOutboxMessage("credit.payment", Event{
		Type:   model.EventPaymentSettled,
		UserID: 42,
		Data:   map[string]interface{}{"payment_id": "pay_1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "credit.payment", msg.Topic)
	assert.Equal(t, model.EventPaymentSettled, msg.EventType)
	assert.Equal(t, int64(42), msg.UserID)
	assert.Equal(t, model.OutboxStatusPending, msg.Status)
	assert.True(t, strings.HasPrefix(msg.MessageKey, "EVT"))

	var evt Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
	assert.Equal(t, model.EventPaymentSettled, evt.Type)
	assert.Equal(t, "pay_1", evt.Data["payment_id"])
}
