// Package transforms holds the pure field-level transforms applied to raw
// row values before normalization. Every function is total: malformed
// input degrades to the documented fallback, never an error.
package transforms

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Layouts tried in order by InferDate. ISO first, then the day-first
// forms the invoices actually arrive in.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2.1.2006",
	"02/01/06",
}

// InferDate returns the canonical ISO date (YYYY-MM-DD) for a recognized
// input, or ("", false) when no layout matches.
func InferDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

var currencyRunes = "$€£¥₿"

// ParsePrice parses a locale-formatted price string ("2.500,00",
// "1,234.56", "$ 300") into a 2-place decimal. Returns (zero, false) for
// anything that is not a price; the caller surfaces the invalid flag.
func ParsePrice(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(currencyRunes, r) || r == ' ' || r == ' ' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero, false
	}

	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Both present: the rightmost one is the decimal mark.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// Lone comma: decimal mark unless it groups exactly three digits.
		if len(s)-lastComma-1 == 3 && strings.Count(s, ",") == 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		// Lone dot grouping exactly three digits is a thousands separator.
		if len(s)-lastDot-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		} else if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d.Round(2), true
}

// RemoveSpecialCharacters strips control and symbol runes while keeping
// letters (accents included), digits, whitespace and the punctuation that
// carries meaning in descriptions.
func RemoveSpecialCharacters(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune(r)
		case r == '/' || r == '.' || r == ',' || r == '%' || r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SeparateCamelCase inserts a space at every lower→upper transition.
func SeparateCamelCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	b.WriteRune(runes[0])
	for i := 1; i < len(runes); i++ {
		if unicode.IsLower(runes[i-1]) && unicode.IsUpper(runes[i]) {
			b.WriteRune(' ')
		}
		b.WriteRune(runes[i])
	}
	return b.String()
}

// CollapseWhitespace squeezes runs of whitespace into single spaces and
// trims the ends.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var titleCaser = cases.Title(language.Spanish)

// CleanProviderName turns a raw provider string into its display form:
// special characters removed, camel case split, whitespace collapsed,
// title-cased. "distribuidoraSanJuan" -> "Distribuidora San Juan".
// Empty input stays empty.
func CleanProviderName(s string) string {
	cleaned := CollapseWhitespace(SeparateCamelCase(RemoveSpecialCharacters(s)))
	if cleaned == "" {
		return ""
	}
	return titleCaser.String(cleaned)
}

var (
	measureRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*([a-zA-Z]{1,3})\b`)
	packageRe = regexp.MustCompile(`[xX]\s*(\d+)\b`)
)

// MeasureUnit is the structured result of scanning a free-text
// description for a quantity+unit pattern. Each field is independently
// absent when not found. Unit is returned as written; callers lower-case
// it so the function stays pure.
type MeasureUnit struct {
	Measure      decimal.NullDecimal
	Unit         string
	PackageUnits *int
}

// ExtractMeasureUnit finds the first quantity+unit occurrence
// ("500ml", "1 kg") and an x-count package descriptor ("x12").
func ExtractMeasureUnit(s string) MeasureUnit {
	var out MeasureUnit
	if m := measureRe.FindStringSubmatch(s); m != nil {
		if d, ok := ParsePrice(m[1]); ok {
			out.Measure = decimal.NullDecimal{Decimal: d, Valid: true}
			out.Unit = m[2]
		}
	}
	if m := packageRe.FindStringSubmatch(s); m != nil {
		if n, err := parseInt(m[1]); err == nil {
			out.PackageUnits = &n
		}
	}
	return out
}

func parseInt(s string) (int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return int(d.IntPart()), nil
}
