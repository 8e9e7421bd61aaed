package source

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode converts content from the named charset to UTF-8 and drops a UTF-8 byte order mark.
// Parameters:
//   - content: raw bytes.
//   - label: charset label such as "utf-8", "windows-1251" or "latin1"; empty means UTF-8.
// Returns:
//   - []byte: UTF-8 content.
//   - error: non-nil if the label is unknown or decoding fails.
func Decode(content []byte, label string) ([]byte, error) {
	label = strings.TrimSpace(label)
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return bytes.TrimPrefix(content, utf8BOM), nil
	}

	r, err := charset.NewReaderLabel(label, bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s content: %w", label, err)
	}
	return bytes.TrimPrefix(decoded, utf8BOM), nil
}
