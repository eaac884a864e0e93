package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalColumns stores the energy columns of a run as a JSON array.
func marshalColumns(cols []string) (string, error) {
	if cols == nil {
		cols = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(cols); err != nil {
		return "", fmt.Errorf("marshal columns: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalColumns(data string) ([]string, error) {
	var cols []string
	if err := json.Unmarshal([]byte(data), &cols); err != nil {
		return nil, fmt.Errorf("unmarshal columns: %w", err)
	}
	return cols, nil
}
