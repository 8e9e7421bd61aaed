package csvfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/timmy/marketplace/internal/source"
)

// Adapter reads comma-separated uploads.
type Adapter struct {
	charset string
}

// NewAdapter creates a CSV reader for files in the given charset.
// Parameters:
//   - charset: charset label of uploaded files; empty means UTF-8.
// Returns:
//   - *Adapter: initialized CSV adapter.
func NewAdapter(charset string) *Adapter {
	return &Adapter{charset: charset}
}

func (a *Adapter) Format() string { return "csv" }

func (a *Adapter) Extension() string { return ".csv" }

// ReadRows parses every record. Records may have different field counts;
// validating the layout is left to the row extractor.
func (a *Adapter) ReadRows(ctx context.Context, content []byte) ([]source.Row, error) {
	decoded, err := source.Decode(content, a.charset)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(decoded))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows []source.Row
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		line, _ := r.FieldPos(0)
		rows = append(rows, source.Row{Line: line, Fields: record})
	}
	return rows, nil
}
