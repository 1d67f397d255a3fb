package encoder

import (
	"fmt"

	"github.com/linkedin/goavro/v2"

	"github.com/jittakal/kafcoldstore/pkg/encoder"
	"github.com/jittakal/kafcoldstore/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*AvroJSONEncoder)(nil)

// AvroJSONEncoder writes each event as an Avro JSON datum followed by CRLF.
// Every datum is validated against a schema generated from the record layout,
// so downstream readers can decode the lines with the same schema.
type AvroJSONEncoder struct {
	cfg   RecordConfig
	codec *goavro.Codec
}

// NewAvroJSONEncoder creates an Avro JSON encoder.
func NewAvroJSONEncoder(cfg RecordConfig) (*AvroJSONEncoder, error) {
	codec, err := goavro.NewCodec(avroSchema(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}
	return &AvroJSONEncoder{cfg: cfg, codec: codec}, nil
}

// avroSchema returns the Avro schema for the configured record layout.
func avroSchema(cfg RecordConfig) string {
	fields := fmt.Sprintf(`{"name": %q, "type": "string"}`, cfg.propertiesKey())
	if cfg.IncludeOffset {
		fields += `, {"name": "Offset", "type": ["null", "long"], "default": null}`
	}
	if cfg.IncludePayload {
		fields += `, {"name": "Payload", "type": ["null", "string"], "default": null}`
	}
	return `{
		"type": "record",
		"name": "ColdStorageRecord",
		"namespace": "io.kafcoldstore",
		"fields": [` + fields + `]
	}`
}

// Encode returns the record bytes for e.
func (a *AvroJSONEncoder) Encode(e *event.Event) ([]byte, error) {
	props, err := a.cfg.propertyString(e)
	if err != nil {
		return nil, err
	}

	native := map[string]any{a.cfg.propertiesKey(): props}
	if a.cfg.IncludeOffset {
		native["Offset"] = goavro.Union("long", e.Offset)
	}
	if a.cfg.IncludePayload {
		if e.Payload != nil {
			native["Payload"] = goavro.Union("string", string(e.Payload))
		} else {
			native["Payload"] = nil
		}
	}

	data, err := a.codec.TextualFromNative(nil, native)
	if err != nil {
		return nil, fmt.Errorf("failed to encode avro record: %w", err)
	}
	return append(data, LineDelimiter...), nil
}

// Format returns the record format.
func (a *AvroJSONEncoder) Format() event.RecordFormat {
	return event.FormatAvroJSON
}

// Schema returns the generated Avro schema.
func (a *AvroJSONEncoder) Schema() string {
	return a.codec.Schema()
}
