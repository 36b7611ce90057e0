package privacy

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// DecodeDocument decodes a single JSON document into the value shapes the
// deep walker understands. Numbers stay json.Number so they re-encode exactly.
func DecodeDocument(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	return value, nil
}

// EncodeDocument encodes value without HTML escaping, so placeholders with
// prefixes like "<<PII_" survive as written. A non-empty indent pretty-prints.
// There is no trailing newline.
func EncodeDocument(value any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
