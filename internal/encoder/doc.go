// Package encoder provides the record encoders used to fill frames.
//
// Every encoder turns one event into a self-contained record terminated by
// CRLF, so that frames are plain concatenations of records and any run of
// frames is itself a valid record stream.
//
// # Record layout
//
// A record carries a property string built from a configured list of event
// properties, joined as "name:value" pairs separated by commas:
//
//	{"Properties":"Location:lab-1,Time:2026-03-01T12:00:00Z,Motion:true,Hostname:pi-07"}
//
// An empty field list persists every property, sorted by name. A configured
// property that the event lacks makes the event unserializable
// (ErrMissingProperty); the processor skips such events.
//
// Offset and Payload members can be added with RecordConfig.
//
// # Formats
//
//	json       JSON object per line (goccy/go-json)
//	avro-json  Avro JSON encoding validated against a generated schema (goavro)
//
// # Factory
//
//	factory := encoder.NewFactory(event.FormatJSON, encoder.DefaultRecordConfig())
//	enc, err := factory.CreateEncoder()
package encoder
