// internal/source/types.go
package source

import "io"

// RawRow is one tabular row as extracted from a source file, all fields
// still raw strings. Image sources arrive here too: the vision
// collaborator has already converted the invoice photo into CSV rows.
type RawRow struct {
	Description  string
	ProviderName string
	LastReviewDt string
	Price        string
	IVA          string
}

// Decoder turns a source byte stream into raw rows.
type Decoder interface {
	Kind() string
	Decode(r io.Reader) ([]RawRow, error)
}
