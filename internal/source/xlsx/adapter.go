package xlsx

import (
	"bytes"
	"context"
	"fmt"

	"github.com/timmy/marketplace/internal/source"
	"github.com/xuri/excelize/v2"
)

// Adapter reads the first worksheet of an .xlsx upload.
type Adapter struct{}

// NewAdapter creates a spreadsheet reader.
func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Format() string { return "xlsx" }

func (a *Adapter) Extension() string { return ".xlsx" }

// ReadRows returns the non-empty rows of the first sheet. excelize drops trailing empty cells,
// which only affects rows whose last column is blank and therefore invalid anyway.
func (a *Adapter) ReadRows(ctx context.Context, content []byte) ([]source.Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}

	var rows []source.Row
	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if isEmpty(record) {
			continue
		}
		rows = append(rows, source.Row{Line: i + 1, Fields: record})
	}
	return rows, nil
}

func isEmpty(record []string) bool {
	for _, cell := range record {
		if cell != "" {
			return false
		}
	}
	return true
}
