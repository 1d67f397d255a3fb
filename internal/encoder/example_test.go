package encoder_test

import (
	"fmt"

	"github.com/jittakal/kafcoldstore/internal/encoder"
	"github.com/jittakal/kafcoldstore/pkg/event"
)

func ExampleJSONEncoder_Encode() {
	enc := encoder.NewJSONEncoder(encoder.RecordConfig{
		Fields: []string{"Location", "Motion"},
	})

	data, err := enc.Encode(&event.Event{
		Offset:     7,
		Properties: map[string]any{"Location": "hall", "Motion": true},
	})
	if err != nil {
		panic(err)
	}

	fmt.Printf("%q\n", data)
	// Output: "{\"Properties\":\"Location:hall,Motion:true\"}\r\n"
}

func ExampleFactory_CreateEncoder() {
	factory := encoder.NewFactory(event.FormatAvroJSON, encoder.DefaultRecordConfig())

	enc, err := factory.CreateEncoder()
	if err != nil {
		panic(err)
	}

	fmt.Println(enc.Format())
	// Output: avro-json
}
