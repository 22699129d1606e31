package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Road Trip", "Road_Trip"},
		{"  padded  title ", "padded_title"},
		{"Café del Mar", "Cafe_del_Mar"},
		{"AC/DC: Back in Black", "AC_DC_Back_in_Black"},
		{"what?! (live)", "what_live"},
		{"__a__b__", "a_b"},
		{"v1.2-final.", "v1.2-final"},
		{"日本語", "_"},
		{"", "_"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}
}

func TestSanitizeName_Truncates(t *testing.T) {
	got := SanitizeName(strings.Repeat("a", maxNameLength+50))
	assert.Len(t, got, maxNameLength)
}

func TestSanitizeName_Idempotent(t *testing.T) {
	for _, in := range []string{"Road Trip", "Café del Mar", "AC/DC: Back in Black"} {
		once := SanitizeName(in)
		assert.Equal(t, once, SanitizeName(once))
	}
}
