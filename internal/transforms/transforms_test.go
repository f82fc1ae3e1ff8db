package transforms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-01-31", "2024-01-31", true},
		{"2024-01-31T10:30:00Z", "2024-01-31", true},
		{"31/01/2024", "2024-01-31", true},
		{"1/2/2024", "2024-02-01", true}, // day first
		{"31-01-2024", "2024-01-31", true},
		{"31.01.2024", "2024-01-31", true},
		{"31/01/24", "2024-01-31", true},
		{"not a date", "", false},
		{"", "", false},
		{"32/01/2024", "", false},
	}
	for _, tt := range tests {
		got, ok := InferDate(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2.500,00", "2500", true},
		{"1,234.56", "1234.56", true},
		{"$ 300", "300", true},
		{"€1.250.000,50", "1250000.5", true},
		{"2,50", "2.5", true},
		{"1.234", "1234", true}, // three digits after a lone dot: thousands
		{"1.23", "1.23", true},
		{"2,500", "2500", true}, // three digits after a lone comma: thousands
		{"-15,5", "-15.5", true},
		{"not a number", "", false},
		{"", "", false},
		{"$", "", false},
	}
	for _, tt := range tests {
		got, ok := ParsePrice(tt.in)
		require.Equal(t, tt.ok, ok, "input %q", tt.in)
		if ok {
			assert.Equal(t, tt.want, got.String(), "input %q", tt.in)
		}
	}
}

func TestParsePriceStable(t *testing.T) {
	a, ok1 := ParsePrice("2.500,00")
	b, ok2 := ParsePrice("2.500,00")
	require.True(t, ok1)
	require.True(t, ok2)
	assert.True(t, a.Equal(b))
}

func TestRemoveSpecialCharacters(t *testing.T) {
	assert.Equal(t, "Café 100% ñandú", RemoveSpecialCharacters("Café* 100% ¡ñandú!"))
	assert.Equal(t, "Arroz 1kg", RemoveSpecialCharacters("Arroz@ #1kg"))
	assert.Equal(t, "a/b-c.d,e", RemoveSpecialCharacters("a/b-c.d,e"))
	assert.Equal(t, "", RemoveSpecialCharacters("¡!@#$^&*()"))
}

func TestSeparateCamelCase(t *testing.T) {
	assert.Equal(t, "distribuidora San Juan", SeparateCamelCase("distribuidoraSanJuan"))
	assert.Equal(t, "already split", SeparateCamelCase("already split"))
	assert.Equal(t, "", SeparateCamelCase(""))
	assert.Equal(t, "ABC", SeparateCamelCase("ABC")) // no lower→upper boundary
}

func TestCleanProviderName(t *testing.T) {
	assert.Equal(t, "Distribuidora San Juan", CleanProviderName("distribuidoraSanJuan"))
	assert.Equal(t, "Acme Foods", CleanProviderName("  acme   foods  "))
	assert.Equal(t, "", CleanProviderName("***"))
}

func TestExtractMeasureUnit(t *testing.T) {
	mu := ExtractMeasureUnit("Arroz 1kg")
	require.True(t, mu.Measure.Valid)
	assert.Equal(t, "1", mu.Measure.Decimal.String())
	assert.Equal(t, "kg", mu.Unit)
	assert.Nil(t, mu.PackageUnits)

	mu = ExtractMeasureUnit("Coke 1000mg/5ml")
	require.True(t, mu.Measure.Valid)
	assert.Equal(t, "1000", mu.Measure.Decimal.String())
	assert.Equal(t, "mg", mu.Unit)

	mu = ExtractMeasureUnit("Galletas x12")
	assert.False(t, mu.Measure.Valid)
	assert.Equal(t, "", mu.Unit)
	require.NotNil(t, mu.PackageUnits)
	assert.Equal(t, 12, *mu.PackageUnits)

	mu = ExtractMeasureUnit("Leche 500ml x6")
	require.True(t, mu.Measure.Valid)
	assert.Equal(t, "500", mu.Measure.Decimal.String())
	assert.Equal(t, "ml", mu.Unit)
	require.NotNil(t, mu.PackageUnits)
	assert.Equal(t, 6, *mu.PackageUnits)

	mu = ExtractMeasureUnit("sin cantidad")
	assert.False(t, mu.Measure.Valid)
	assert.Equal(t, "", mu.Unit)
	assert.Nil(t, mu.PackageUnits)
}
