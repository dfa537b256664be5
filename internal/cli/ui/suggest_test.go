package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"saturday", "sunday", 3},
		{"person", "person", 0},
		{"straße", "strasse", 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Distance(tt.a, tt.b), "%s/%s", tt.a, tt.b)
	}
}

func TestSuggest(t *testing.T) {
	candidates := []string{"firstName", "lastName", "birthday", "height"}

	assert.Equal(t, []string{"firstName", "lastName"}, Suggest("fistname", candidates, nil))
	assert.Empty(t, Suggest("zzzzzzzz", candidates, nil))
	assert.Empty(t, Suggest("FIRSTNAME", candidates, &SuggestOptions{CaseSensitive: true, MaxDistance: 2}))
	assert.Equal(t, []string{"height"}, Suggest("weight", candidates, &SuggestOptions{MaxDistance: 1, MaxSuggestions: 1}))
}
