package kafka

import (
	"encoding/json"
	"strconv"

	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

// EventType names an envelope for headers and logs, e.g. "order.update".
func EventType(e orders.Envelope) string {
	return string(e.Entity) + "." + string(e.Operation)
}

// EncodeEnvelope builds the message for one change event, keyed so that all
// events of one entity land on the same partition.
func EncodeEnvelope(e orders.Envelope) (key, value []byte, headers []kafka.Header, err error) {
	value, err = json.Marshal(e)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "encode envelope %s", e.EventID)
	}
	headers = []kafka.Header{
		{Key: HeaderEventType, Value: []byte(EventType(e))},
		{Key: HeaderEventVersion, Value: []byte(strconv.FormatInt(e.Version, 10))},
	}
	return orders.PartitionKey(e), value, headers, nil
}

func DecodeEnvelope(m kafka.Message) (orders.Envelope, error) {
	var e orders.Envelope
	if err := json.Unmarshal(m.Value, &e); err != nil {
		return orders.Envelope{}, errors.Wrap(err, "decode envelope")
	}
	return e, nil
}

// Header returns the value of the named header, or "".
func Header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
