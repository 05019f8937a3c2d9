package job

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// DecodeCapture turns captured output into a variable value. The raw
// encodings keep the bytes untouched; any other encoding is decoded to a
// string with a single trailing newline removed.
func DecodeCapture(data []byte, encoding string) (any, error) {
	enc := strings.ToLower(strings.TrimSpace(encoding))
	switch enc {
	case "bin", "binary", "bytes", "raw":
		return data, nil
	case "", "utf-8", "utf8":
		return strings.TrimSuffix(string(data), "\n"), nil
	}
	e, err := htmlindex.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("unknown capture encoding %q: %w", encoding, err)
	}
	out, err := e.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode captured output as %s: %w", encoding, err)
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}
