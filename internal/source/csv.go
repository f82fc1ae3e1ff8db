package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// Required headers of a product listing CSV. Invoice extractions use the
// same layout, so the "image" kind shares this decoder.
var requiredHeaders = []string{"Producto", "Fecha", "Provedor", "Precio", "IVA"}

// headerField maps an incoming header label onto a RawRow field setter.
// "Fecha 1" shows up in older exports alongside "Fecha".
var headerField = map[string]func(*RawRow, string){
	"Producto": func(r *RawRow, v string) { r.Description = v },
	"Fecha":    func(r *RawRow, v string) { r.LastReviewDt = v },
	"Fecha 1":  func(r *RawRow, v string) { r.LastReviewDt = v },
	"Provedor": func(r *RawRow, v string) { r.ProviderName = v },
	"Precio":   func(r *RawRow, v string) { r.Price = v },
	"IVA":      func(r *RawRow, v string) { r.IVA = v },
}

type CSVDecoder struct {
	kind string
}

func (d *CSVDecoder) Kind() string { return d.kind }

// Decode reads a header-first CSV stream. The reader is wrapped with a
// BOM/charset-sniffing reader so legacy latin-encoded exports survive.
// Missing required headers are an error; extra headers are ignored.
func (d *CSVDecoder) Decode(r io.Reader) ([]RawRow, error) {
	cr, err := charset.NewReader(r, "text/csv")
	if err != nil {
		return nil, fmt.Errorf("charset detection: %w", err)
	}

	rd := csv.NewReader(cr)
	rd.FieldsPerRecord = -1
	rd.TrimLeadingSpace = true

	header, err := rd.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty %s source", d.kind)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	setters := make([]func(*RawRow, string), len(header))
	seen := map[string]bool{}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if set, ok := headerField[h]; ok {
			setters[i] = set
			seen[h] = true
		}
	}
	var missing []string
	for _, h := range requiredHeaders {
		if h == "Fecha" && seen["Fecha 1"] {
			continue
		}
		if !seen[h] {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required headers: %s (expected %s)",
			strings.Join(missing, ", "), strings.Join(requiredHeaders, ", "))
	}

	var rows []RawRow
	for {
		rec, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		var row RawRow
		for i, v := range rec {
			if i < len(setters) && setters[i] != nil {
				setters[i](&row, strings.TrimSpace(v))
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func init() {
	Register("csv", &CSVDecoder{kind: "csv"})
	Register("image", &CSVDecoder{kind: "image"})
}
