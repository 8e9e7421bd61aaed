package domain

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound       = errors.New("import job not found")
	ErrJobFinalized      = errors.New("import job already finalized")
	ErrMalformedRow      = errors.New("malformed row")
	ErrEmptyFile         = errors.New("empty import file")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrUploaderNotFound  = errors.New("uploader not found")
	ErrShopNotFound      = errors.New("uploader has no shop")
	ErrLockTimeout       = errors.New("timed out waiting for import lock")
	ErrLockLost          = errors.New("import lock lost during run")
	ErrInvalidInput      = errors.New("invalid input")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// RowError attributes a failure to one line of an import file.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}
