package storage

import (
	"bytes"
	"encoding/gob"
)

// Series hold NaN for undefined prices, which JSON cannot carry, so values
// are gob encoded.
func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
