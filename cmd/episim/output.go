package main

import (
	"encoding/json"
	"io"
)

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func encodeJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
