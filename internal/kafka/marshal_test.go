package kafka

import (
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEnvelope(t *testing.T) {
	o := orders.Build(orders.NewOrder{BowlID: "bowl-A1", CustomerName: "Budi"}, time.Now().UTC())
	e := orders.OrderChanged(orders.OpInsert, o, "api", "req-1")

	key, value, headers, err := EncodeEnvelope(e)
	require.NoError(t, err)
	assert.Equal(t, orders.PartitionKey(e), key)

	m := kafka.Message{Key: key, Value: value, Headers: headers}
	assert.Equal(t, "order.insert", Header(m, HeaderEventType))
	assert.Equal(t, "1", Header(m, HeaderEventVersion))
	assert.Equal(t, "", Header(m, "missing"))

	got, err := DecodeEnvelope(m)
	require.NoError(t, err)
	assert.Equal(t, e.EventID, got.EventID)
	assert.Equal(t, "req-1", got.TraceID)
	require.NotNil(t, got.Order)
	assert.Equal(t, o.ID, got.Order.ID)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope(kafka.Message{Value: []byte("nope")})
	assert.Error(t, err)
}

func TestSameEntitySamePartitionKey(t *testing.T) {
	o := orders.Build(orders.NewOrder{BowlID: "bowl-A1"}, time.Now())
	a := orders.OrderChanged(orders.OpInsert, o, "api", "")
	o.Version++
	b := orders.OrderChanged(orders.OpUpdate, o, "api", "")
	assert.Equal(t, orders.PartitionKey(a), orders.PartitionKey(b))

	bowl := orders.BowlChanged(orders.Bowl{ID: o.ID}, "api", "")
	assert.NotEqual(t, orders.PartitionKey(a), orders.PartitionKey(bowl), "entity kind is part of the key")
}
