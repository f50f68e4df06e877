package store

import (
	"bytes"
	"fmt"

	"github.com/ugorji/go/codec"
)

// InitialValue is the value a subscribed variable holds until its first SET
// is applied.
const InitialValue int64 = -1

// LogEntry is a committed SET operation. Timestamp is the final timestamp of
// the operation, identical at every subscriber. Origin and Seq identify the
// operation: Seq counts the SETs submitted by Origin, starting at 1.
type LogEntry struct {
	Variable  string
	Value     int64
	Timestamp uint64
	Origin    uint32
	Seq       uint64
}

// String renders the entry the way it appears in peer logs.
func (e LogEntry) String() string {
	return fmt.Sprintf("SET(%s,%d) ts=%d", e.Variable, e.Value, e.Timestamp)
}

// Key uniquely identifies the operation across the run.
func (e LogEntry) Key() string {
	return OpKey(e.Origin, e.Seq)
}

// Marshal encodes the entry in canonical JSON.
func (e *LogEntry) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(e); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes an entry produced by Marshal.
func (e *LogEntry) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(e)
}

// OpKey formats the identity of operation seq from origin.
func OpKey(origin uint32, seq uint64) string {
	return fmt.Sprintf("%d.%d", origin, seq)
}

// Variable is the local replica of a shared variable.
type Variable struct {
	Value     int64
	Timestamp uint64
	Written   bool
}
