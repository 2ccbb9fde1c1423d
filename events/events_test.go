package events

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wallet-ledger/ledger"
)

func sampleEvent() ledger.Event {
	amount := decimal.RequireFromString("-200.5")
	return ledger.Event{
		ID:            "01HZ",
		Type:          ledger.EventTransactionCreated,
		OccurredAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		WalletID:      "w1",
		TransactionID: "t1",
		Amount:        &amount,
	}
}

func TestEncode_SnakeCaseAndExactAmounts(t *testing.T) {
	payload, err := Encode(sampleEvent())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "transaction.created", got["type"])
	assert.Equal(t, "w1", got["wallet_id"])
	assert.Equal(t, "-200.5", got["amount"])
	assert.NotContains(t, got, "transfer_id")
	assert.NotContains(t, got, "balance")
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_KeysByWallet(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{w: w}

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "w1", string(w.msgs[0].Key))
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, "transaction.created", string(w.msgs[0].Headers[0].Value))

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), sampleEvent()))
}

func TestRedisPublisher_DeliversToSubscribers(t *testing.T) {
	addr := os.Getenv("LEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LEDGER_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	sub := rdb.Subscribe(ctx, "ledger_events_test")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	p := NewRedisPublisher(rdb, "ledger_events_test")
	require.NoError(t, p.Publish(ctx, sampleEvent()))

	select {
	case msg := <-sub.Channel():
		var got ledger.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, ledger.TransactionID("t1"), got.TransactionID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}
