package mq

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerSendSetsKeyAndHeader(t *testing.T) {
	mock := mocks.NewSyncProducer(t, NewSaramaConfig())
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"type":"gift_unlocked"}` {
			return errors.New("unexpected payload")
		}
		return nil
	})
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if len(msg.Headers) != 0 {
			return errors.New("header should be empty")
		}
		return nil
	})

	p := NewProducer(mock)
	require.NoError(t, p.Send("credit.notification", "EVT1", "gift_unlocked", `{"type":"gift_unlocked"}`))
	require.NoError(t, p.Send("credit.notification", "EVT2", "", `{}`))
	require.NoError(t, p.Close())
}

func TestProducerSendError(t *testing.T) {
	mock := mocks.NewSyncProducer(t, NewSaramaConfig())
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducer(mock)
	err := p.Send("credit.notification", "EVT1", "gift_received", `{}`)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestCloseNilProducer(t *testing.T) {
	var p *Producer
	assert.NoError(t, p.Close())
}
