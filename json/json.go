// Wrap json library to control encoding.

package json

import (
	"bytes"

	"github.com/Velocidex/json"
	"github.com/Velocidex/ordereddict"
)

type EncOpts = json.EncOpts
type RawMessage = json.RawMessage

// Dicts are encoded preserving their key order so stored records
// and CLI output are stable.
func MarshalJSONDict(v interface{}, opts *json.EncOpts) ([]byte, error) {
	self, ok := v.(*ordereddict.Dict)
	if !ok {
		return nil, json.EncoderCallbackSkip
	}

	buf := &bytes.Buffer{}
	buf.WriteString("{")
	first := true
	for _, k := range self.Keys() {
		k_escaped, err := json.MarshalWithOptions(k, opts)
		if err != nil {
			continue
		}

		value, _ := self.Get(k)
		v_bytes, err := json.MarshalWithOptions(value, opts)
		if err != nil {
			v_bytes = []byte("null")
		}

		if !first {
			buf.WriteString(",")
		}
		first = false

		buf.Write(k_escaped)
		buf.WriteString(":")
		buf.Write(v_bytes)
	}
	buf.WriteString("}")
	return buf.Bytes(), nil
}

func init() {
	RegisterCustomEncoder(ordereddict.NewDict(), MarshalJSONDict)
}
