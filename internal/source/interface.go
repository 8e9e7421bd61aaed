package source

import (
	"bytes"
	"context"
)

// Upload is an import file as received from the uploader.
type Upload struct {
	FileName string
	Content  []byte
}

// IsBlank reports whether the upload has no content besides whitespace.
func (u *Upload) IsBlank() bool {
	return len(bytes.TrimSpace(u.Content)) == 0
}

// Row is one record of an import file. Line is 1-based.
type Row struct {
	Line   int
	Fields []string
}

// Reader turns an uploaded file into rows.
type Reader interface {
	// Format returns the short format name, e.g. "csv".
	// Parameters: none.
	// Returns:
	//   - string: format identifier used in logs.
	Format() string

	// Extension returns the file extension archived copies keep, with the dot.
	Extension() string

	// ReadRows decodes the whole file.
	// Parameters:
	//   - ctx: context for cancellation.
	//   - content: raw file bytes.
	// Returns:
	//   - []Row: rows in file order.
	//   - err: non-nil if the file cannot be parsed at all.
	ReadRows(ctx context.Context, content []byte) ([]Row, error)
}
