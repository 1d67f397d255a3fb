package encoder

import (
	"fmt"

	"github.com/jittakal/kafcoldstore/pkg/encoder"
	"github.com/jittakal/kafcoldstore/pkg/event"
)

// Factory creates encoders based on format and record layout.
type Factory struct {
	format event.RecordFormat
	record RecordConfig
}

// NewFactory creates a new encoder factory.
func NewFactory(format event.RecordFormat, record RecordConfig) *Factory {
	return &Factory{
		format: format,
		record: record,
	}
}

// CreateEncoder creates an encoder based on the configured format.
func (f *Factory) CreateEncoder() (encoder.Encoder, error) {
	switch f.format {
	case event.FormatJSON, "":
		return NewJSONEncoder(f.record), nil
	case event.FormatAvroJSON:
		return NewAvroJSONEncoder(f.record)
	default:
		return nil, fmt.Errorf("unsupported record format: %s", f.format)
	}
}

// SupportedFormats returns a list of supported record formats.
func SupportedFormats() []event.RecordFormat {
	return []event.RecordFormat{
		event.FormatJSON,
		event.FormatAvroJSON,
	}
}
