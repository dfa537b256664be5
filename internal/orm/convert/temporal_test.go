package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestConvert_DefaultLayouts(t *testing.T) {
	c := NewTemporalConverter()

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-01T10:30:00Z", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"2024-03-01T10:30:00+02:00", time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)},
		{"2024-03-01T10:30:00.5-0100", time.Date(2024, 3, 1, 11, 30, 0, 500000000, time.UTC)},
		{"2024-03-01T10:30:00", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"2024-03-01 10:30:00", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)},
		{" 2024-03-01 ", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"20240301", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"03/01/2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := c.Convert(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestConvert_Unparseable(t *testing.T) {
	_, err := NewTemporalConverter().Convert("next tuesday")
	assert.ErrorIs(t, err, ErrUnparseableTemporal)
	assert.Contains(t, err.Error(), "next tuesday")
}

func TestConvert_LocationAppliesToNaiveValues(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("timezone database not available")
	}
	c := NewTemporalConverter(WithLocation(paris))

	got, err := c.Convert("2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 14, 23, 0, 0, 0, time.UTC), got)

	// offsets in the input win over the location
	got, err = c.Convert("2024-01-15T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), got)
}

func TestConvert_Locale(t *testing.T) {
	us := NewTemporalConverter(WithLocale(language.AmericanEnglish))
	fr := NewTemporalConverter(WithLocale(language.French))

	got, err := us.Convert("04/05/2024")
	require.NoError(t, err)
	assert.Equal(t, time.April, got.Month())

	got, err = fr.Convert("04/05/2024")
	require.NoError(t, err)
	assert.Equal(t, time.May, got.Month())

	assert.Equal(t, "01/02/2006", SlashLayout(language.MustParse("en-PH")))
	assert.Equal(t, "02/01/2006", SlashLayout(language.BritishEnglish))
}

func TestConverter_LayoutOrder(t *testing.T) {
	c := NewTemporalConverter(WithLayouts("2006-01-02", "2006-01-02T15:04", time.RFC3339), WithLocale(language.German))
	assert.Equal(t, []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02", "02/01/2006"}, c.Layouts())
}

func TestConvertOffset(t *testing.T) {
	c := NewTemporalConverter()

	got, err := c.ConvertOffset("2024-03-01T10:30:00+02:00")
	require.NoError(t, err)
	_, offset := got.Zone()
	assert.Equal(t, 2*60*60, offset)
	assert.Equal(t, 10, got.Hour())

	_, err = c.ConvertOffset("2024-03-01T10:30:00")
	assert.ErrorIs(t, err, ErrUnparseableTemporal)
}
