// Package encoder implements the record encoders that turn events into frame bytes.
package encoder

import (
	"fmt"
	"slices"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/jittakal/kafcoldstore/internal/errors"
	"github.com/jittakal/kafcoldstore/pkg/encoder"
	"github.com/jittakal/kafcoldstore/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*JSONEncoder)(nil)

// LineDelimiter terminates every persisted record.
const LineDelimiter = "\r\n"

// DefaultFields are the sensor properties persisted when none are configured.
var DefaultFields = []string{"Location", "Time", "Motion", "Hostname"}

// RecordConfig controls the shape of persisted records.
type RecordConfig struct {
	// Fields lists the properties joined into the property string, in order.
	// An empty list persists every property sorted by name.
	Fields []string
	// PropertiesKey is the member holding the property string.
	PropertiesKey string
	// IncludeOffset adds the event offset as an "Offset" member.
	IncludeOffset bool
	// IncludePayload adds the raw payload as a "Payload" string member.
	IncludePayload bool
}

// DefaultRecordConfig returns the default record layout.
func DefaultRecordConfig() RecordConfig {
	return RecordConfig{
		Fields:        slices.Clone(DefaultFields),
		PropertiesKey: "Properties",
	}
}

func (c RecordConfig) propertiesKey() string {
	if c.PropertiesKey == "" {
		return "Properties"
	}
	return c.PropertiesKey
}

// propertyString renders "k:v,k:v" for the configured fields.
func (c RecordConfig) propertyString(e *event.Event) (string, error) {
	fields := c.Fields
	if len(fields) == 0 {
		fields = make([]string, 0, len(e.Properties))
		for k := range e.Properties {
			fields = append(fields, k)
		}
		slices.Sort(fields)
	}

	var sb strings.Builder
	for i, name := range fields {
		v, ok := e.Property(name)
		if !ok {
			return "", fmt.Errorf("%w: %s", errors.ErrMissingProperty, name)
		}
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(name)
		sb.WriteByte(':')
		sb.WriteString(formatValue(v))
	}
	return sb.String(), nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// JSONEncoder writes one JSON object per event followed by CRLF.
type JSONEncoder struct {
	cfg RecordConfig
}

// NewJSONEncoder creates a JSON record encoder.
func NewJSONEncoder(cfg RecordConfig) *JSONEncoder {
	return &JSONEncoder{cfg: cfg}
}

// Encode returns the record bytes for e.
func (j *JSONEncoder) Encode(e *event.Event) ([]byte, error) {
	props, err := j.cfg.propertyString(e)
	if err != nil {
		return nil, err
	}

	record := map[string]any{j.cfg.propertiesKey(): props}
	if j.cfg.IncludeOffset {
		record["Offset"] = e.Offset
	}
	if j.cfg.IncludePayload {
		record["Payload"] = string(e.Payload)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return append(data, LineDelimiter...), nil
}

// Format returns the record format.
func (j *JSONEncoder) Format() event.RecordFormat {
	return event.FormatJSON
}
