//go:build nojsonsimd

package main

import stdjson "encoding/json"

// fastJSONMarshal falls back to encoding/json when sonic's runtime codegen
// is unavailable (e.g. non-amd64/arm64 builds via the nojsonsimd tag).
func fastJSONMarshal(v any) ([]byte, error) {
	return stdjson.Marshal(v)
}

// fastJSONUnmarshal is the encoding/json counterpart of fastJSONMarshal.
func fastJSONUnmarshal(data []byte, v any) error {
	return stdjson.Unmarshal(data, v)
}
