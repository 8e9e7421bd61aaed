package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/timmy/marketplace/internal/domain"
)

// Column layout: name, main-category, category, description, [detail-key, detail-value]*, tags, price, remains.
const (
	colName = iota
	colMainCategory
	colSubCategory
	colDescription
	colFirstDetail

	minRowFields = colFirstDetail + 3
	headerToken  = "name"
)

// ErrHeaderRow marks a row that is a column header rather than data.
var ErrHeaderRow = errors.New("header row")

// ProductRecord is one validated data row.
type ProductRecord struct {
	Line         int
	Name         string
	MainCategory string
	SubCategory  string
	Description  string
	Details      domain.Details
	Tags         []string
	Price        float64
	Remains      int
}

// CategoryName returns the category the product is filed under.
func (r *ProductRecord) CategoryName() string {
	if r.SubCategory != "" {
		return r.SubCategory
	}
	return r.MainCategory
}

// ExtractRow validates one row of an import file.
// Parameters:
//   - line: 1-based line number used in errors.
//   - fields: raw fields of the row.
// Returns:
//   - ProductRecord: the parsed record.
//   - error: ErrHeaderRow for the header, or a *domain.RowError wrapping domain.ErrMalformedRow.
func ExtractRow(line int, fields []string) (ProductRecord, error) {
	if len(fields) > 0 && strings.EqualFold(strings.TrimSpace(fields[colName]), headerToken) {
		return ProductRecord{}, ErrHeaderRow
	}
	if len(fields) < minRowFields {
		return ProductRecord{}, malformed(line, "expected at least %d fields, got %d", minRowFields, len(fields))
	}

	tail := len(fields) - 3
	if (tail-colFirstDetail)%2 != 0 {
		return ProductRecord{}, malformed(line, "detail columns must come in key/value pairs")
	}

	rec := ProductRecord{
		Line:         line,
		Name:         strings.TrimSpace(fields[colName]),
		MainCategory: strings.TrimSpace(fields[colMainCategory]),
		SubCategory:  strings.TrimSpace(fields[colSubCategory]),
		Description:  strings.TrimSpace(fields[colDescription]),
		Details:      domain.Details{},
		Tags:         splitTags(fields[tail]),
	}
	if rec.Name == "" {
		return ProductRecord{}, malformed(line, "product name is empty")
	}
	if rec.MainCategory == "" {
		return ProductRecord{}, malformed(line, "main category is empty")
	}

	for i := colFirstDetail; i < tail; i += 2 {
		key := strings.TrimSpace(fields[i])
		if key == "" {
			continue
		}
		rec.Details[key] = strings.TrimSpace(fields[i+1])
	}

	price, err := strconv.ParseFloat(strings.TrimSpace(fields[tail+1]), 64)
	if err != nil || price < 0 {
		return ProductRecord{}, malformed(line, "invalid price %q", fields[tail+1])
	}
	remains, err := strconv.Atoi(strings.TrimSpace(fields[tail+2]))
	if err != nil || remains < 0 {
		return ProductRecord{}, malformed(line, "invalid remains %q", fields[tail+2])
	}
	rec.Price = price
	rec.Remains = remains

	return rec, nil
}

func splitTags(raw string) []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		tag := strings.TrimSpace(part)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

func malformed(line int, format string, args ...interface{}) error {
	return &domain.RowError{
		Line: line,
		Err:  fmt.Errorf("%w: %s", domain.ErrMalformedRow, fmt.Sprintf(format, args...)),
	}
}
