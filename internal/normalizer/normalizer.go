// Package normalizer converts a batch of raw rows into deduplicated
// Provider/Product/Link record sets stamped with one batch id, plus the
// set of unit-of-measure acronyms not seen before.
package normalizer

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/provider24/ingest/internal/source"
	"github.com/provider24/ingest/internal/transforms"
)

// Lookups are the reference tables loaded once per invocation.
type Lookups struct {
	// ProviderSynonyms maps a lower-cased synonym to the canonical clean
	// provider name.
	ProviderSynonyms map[string]string
	// UnitAcronyms maps an alias spelling (lower-cased) to the canonical
	// unit acronym ("gr" -> "g").
	UnitAcronyms map[string]string
	// KnownUnits holds the canonical acronyms already present in the fact
	// table; anything outside it lands in Result.NewUnits.
	KnownUnits map[string]struct{}
}

type ProviderRecord struct {
	NameKey string
	Name    string
}

type ProductRecord struct {
	DescriptionKey   string
	RawDescription   string
	CleanDescription string
	Measure          decimal.NullDecimal
	UnitAcronym      string
	PackageUnits     int
	Price            decimal.NullDecimal
	IsValidPrice     bool
}

type LinkRecord struct {
	ProviderKey    string
	DescriptionKey string
	UnitAcronym    string
	PackageUnits   int
	Price          decimal.NullDecimal
	IVA            decimal.NullDecimal
	RawLastReview  string
	LastReviewDt   *time.Time
	IsValidated    bool
}

type Result struct {
	Batch     string
	Providers []ProviderRecord
	Products  []ProductRecord
	Links     []LinkRecord
	// NewUnits are canonical acronyms absent from Lookups.KnownUnits,
	// deduplicated, in first-seen order.
	NewUnits []string
	// Rejected counts rows dropped for missing a description.
	Rejected int
}

type productKey struct {
	desc  string
	unit  string
	units int
}

type linkKey struct {
	provider string
	product  productKey
}

// ProviderNameKey computes the provider natural key: cleaned name,
// case-insensitive, whitespace-collapsed. Stable by construction.
func ProviderNameKey(clean string) string {
	return strings.ToLower(transforms.CollapseWhitespace(clean))
}

// DescriptionKey computes the stable product description key.
func DescriptionKey(raw string) string {
	return strings.ToLower(transforms.CollapseWhitespace(transforms.RemoveSpecialCharacters(raw)))
}

// Normalize builds the three record sets for one batch. Empty input is
// valid and yields empty sets. Rows missing a description are rejected
// and tallied; rows with unparseable prices are kept but flagged.
func Normalize(log zerolog.Logger, rows []source.RawRow, batch string, lk Lookups) Result {
	res := Result{Batch: batch}

	providers := map[string]int{} // name key -> index into res.Providers
	products := map[productKey]int{}
	links := map[linkKey]int{}
	newUnits := map[string]bool{}

	for _, row := range rows {
		rawDesc := strings.TrimSpace(row.Description)
		if rawDesc == "" {
			res.Rejected++
			continue
		}

		cleanDesc := transforms.CollapseWhitespace(
			transforms.SeparateCamelCase(transforms.RemoveSpecialCharacters(rawDesc)))

		mu := transforms.ExtractMeasureUnit(rawDesc)
		unit := canonicalUnit(strings.ToLower(mu.Unit), lk)
		pkgUnits := 0
		if mu.PackageUnits != nil {
			pkgUnits = *mu.PackageUnits
		}

		price, priceOK := transforms.ParsePrice(row.Price)
		var nullPrice decimal.NullDecimal
		if priceOK {
			nullPrice = decimal.NullDecimal{Decimal: price, Valid: true}
		}

		if unit != "" {
			if _, known := lk.KnownUnits[unit]; !known && !newUnits[unit] {
				newUnits[unit] = true
				res.NewUnits = append(res.NewUnits, unit)
			}
		}

		// Provider: first occurrence's display name wins.
		provKey := ""
		cleanProv := transforms.CleanProviderName(row.ProviderName)
		if synonym, ok := lk.ProviderSynonyms[strings.ToLower(transforms.CollapseWhitespace(row.ProviderName))]; ok {
			cleanProv = synonym
		}
		if cleanProv != "" {
			provKey = ProviderNameKey(cleanProv)
			if _, ok := providers[provKey]; !ok {
				providers[provKey] = len(res.Providers)
				res.Providers = append(res.Providers, ProviderRecord{NameKey: provKey, Name: cleanProv})
			}
		}

		// Product: on a key collision the better price wins (non-null over
		// null, later non-null over earlier).
		pk := productKey{desc: DescriptionKey(rawDesc), unit: unit, units: pkgUnits}
		prod := ProductRecord{
			DescriptionKey:   pk.desc,
			RawDescription:   rawDesc,
			CleanDescription: cleanDesc,
			Measure:          mu.Measure,
			UnitAcronym:      unit,
			PackageUnits:     pkgUnits,
			Price:            nullPrice,
			IsValidPrice:     priceOK,
		}
		if idx, ok := products[pk]; ok {
			if priceOK {
				res.Products[idx] = prod
			}
		} else {
			products[pk] = len(res.Products)
			res.Products = append(res.Products, prod)
		}

		if provKey == "" {
			continue // no provider identity, nothing to link
		}

		rawDt := strings.TrimSpace(row.LastReviewDt)
		var reviewDt *time.Time
		if iso, ok := transforms.InferDate(rawDt); ok {
			if t, err := time.Parse("2006-01-02", iso); err == nil {
				reviewDt = &t
			}
		}

		link := LinkRecord{
			ProviderKey:    provKey,
			DescriptionKey: pk.desc,
			UnitAcronym:    unit,
			PackageUnits:   pkgUnits,
			Price:          nullPrice,
			IVA:            parseTax(row.IVA),
			RawLastReview:  rawDt,
			LastReviewDt:   reviewDt,
		}
		lkKey := linkKey{provider: provKey, product: pk}
		if idx, ok := links[lkKey]; ok {
			res.Links[idx] = link // last write wins, same as the merge policy
		} else {
			links[lkKey] = len(res.Links)
			res.Links = append(res.Links, link)
		}
	}

	log.Info().Str("batch", batch).
		Int("rows", len(rows)).
		Int("providers", len(res.Providers)).
		Int("products", len(res.Products)).
		Int("links", len(res.Links)).
		Int("new_units", len(res.NewUnits)).
		Int("rejected", res.Rejected).
		Msg("batch normalized")

	return res
}

func canonicalUnit(unit string, lk Lookups) string {
	if unit == "" {
		return ""
	}
	if canonical, ok := lk.UnitAcronyms[unit]; ok {
		return canonical
	}
	return unit
}

func parseTax(s string) decimal.NullDecimal {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return decimal.NullDecimal{}
	}
	if d, ok := transforms.ParsePrice(s); ok {
		return decimal.NullDecimal{Decimal: d, Valid: true}
	}
	return decimal.NullDecimal{}
}
