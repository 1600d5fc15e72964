package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_Publish(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "ACC20240115103000123" {
			return errors.New("unexpected key " + string(key))
		}
		if msg.Topic != "ledger.transaction.posted" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		return nil
	})

	producer := NewProducer(mockProducer)
	err := producer.Publish(context.Background(), "ledger.transaction.posted", "ACC20240115103000123", `{"transaction_id":"TXN1"}`)
	require.NoError(t, err)
	require.NoError(t, producer.Close())
}

func TestProducer_PublishFailure(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := NewProducer(mockProducer)
	err := producer.Publish(context.Background(), "ledger.transaction.posted", "ACC1", "{}")
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, producer.Close())
}

func TestProducer_PublishCanceled(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducer(mockProducer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := producer.Publish(ctx, "ledger.transaction.posted", "ACC1", "{}")
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, producer.Close())
}
