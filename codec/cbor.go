// Package codec holds the CBOR configuration used for everything Cyparty
// writes to disk.
//
// JSON stays the format of NATS packets and emitted records. Persisted
// snapshots are CBOR with Core Deterministic Encoding (RFC 8949 §4.2), so
// the same snapshot always produces the same bytes. Snapshot types carry
// only `json` tags; fxamacker/cbor falls back to them for field names.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Diagnose returns the CBOR diagnostic notation of data, for logs and
// debugging stored rows.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
