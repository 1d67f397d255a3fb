package kafka

import (
	"bytes"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2/event"
	"github.com/goccy/go-json"

	"github.com/jittakal/kafcoldstore/pkg/event"
)

// Property names set from structured CloudEvent attributes.
const (
	PropertyCloudEventID      = "ce_id"
	PropertyCloudEventSource  = "ce_source"
	PropertyCloudEventType    = "ce_type"
	PropertyCloudEventSubject = "ce_subject"
	PropertyCloudEventTime    = "ce_time"
)

var specVersionField = []byte(`"specversion"`)

// toEvent converts a consumed message. Record headers become string
// properties. When decodeCloudEvents is set and the value is a structured
// CloudEvent, its attributes and extensions become ce_ properties and the
// top-level fields of an object payload become properties of their own.
func toEvent(msg *sarama.ConsumerMessage, decodeCloudEvents bool) *event.Event {
	props := make(map[string]any, len(msg.Headers))
	for _, h := range msg.Headers {
		if h == nil || len(h.Key) == 0 {
			continue
		}
		props[string(h.Key)] = string(h.Value)
	}

	if decodeCloudEvents {
		mergeCloudEvent(props, msg.Value)
	}

	return &event.Event{
		Topic:        msg.Topic,
		Partition:    msg.Partition,
		PartitionKey: string(msg.Key),
		Offset:       msg.Offset,
		Properties:   props,
		Payload:      msg.Value,
		EnqueuedTime: msg.Timestamp,
	}
}

// mergeCloudEvent adds CloudEvent attributes to props. Values that are not a
// valid structured CloudEvent leave props untouched.
func mergeCloudEvent(props map[string]any, value []byte) {
	if len(value) == 0 || value[0] != '{' || !bytes.Contains(value, specVersionField) {
		return
	}

	ce := cloudevents.New()
	if err := json.Unmarshal(value, &ce); err != nil {
		return
	}
	if err := ce.Validate(); err != nil {
		return
	}

	var data map[string]any
	if len(ce.Data()) > 0 && ce.DataAs(&data) == nil {
		for k, v := range data {
			props[k] = v
		}
	}

	for k, v := range ce.Extensions() {
		props["ce_"+k] = v
	}
	props[PropertyCloudEventID] = ce.ID()
	props[PropertyCloudEventSource] = ce.Source()
	props[PropertyCloudEventType] = ce.Type()
	if s := ce.Subject(); s != "" {
		props[PropertyCloudEventSubject] = s
	}
	if t := ce.Time(); !t.IsZero() {
		props[PropertyCloudEventTime] = t
	}
}
