package domain

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var validPropertyName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func TestSanitizePropertyName(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Favorite Color", "favorite_color"},
		{"favorite_color", "favorite_color"},
		{"  Favorite   Color!! ", "favorite_color"},
		{"123 Go", "prop_123_go"},
		{"9", "prop_9"},
		{"Email", "email_custom"},
		{"ID", "id_custom"},
		{"Create Date", "create_date"},
		{"createdate", "createdate_custom"},
		{"!!!", "prop_unnamed"},
		{"", "prop_unnamed"},
		{"Ça va", "a_va"},
		{"Net-Revenue (USD)", "net_revenue_usd"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got := SanitizePropertyName(tt.label)
			assert.Equal(t, tt.want, got)
			assert.Regexp(t, validPropertyName, got)
		})
	}
}

func TestSanitizePropertyName_AlwaysValid(t *testing.T) {
	labels := []string{
		"_", "__x__", "0", "0_0", "日本語", "Ünïcödé", "a b c", "Deal Value", "hs_object_id",
		"properties", "\t\n", "-leading", "trailing-", "x" + string(rune(0)) + "y",
	}
	for _, l := range labels {
		got := SanitizePropertyName(l)
		assert.Regexp(t, validPropertyName, got, "label %q", l)
		assert.False(t, IsReservedPropertyName(got), "label %q produced reserved %q", l, got)
	}
}
