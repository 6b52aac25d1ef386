package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Nightly cleanup", "Nightly cleanup"},
		{`a<b>c:d"e/f\g|h?i*j`, "abcdefghij"},
		{"  padded  ", "padded"},
		{"CON", "script_CON"},
		{"lpt1", "script_lpt1"},
		{"nul.txt", "script_nul.txt"},
		{"CONSOLE", "CONSOLE"},
		{"", defaultName},
		{`<>:"`, defaultName},
		{"tab\there", "tabhere"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeName(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeName_Truncates(t *testing.T) {
	got := SanitizeName(strings.Repeat("é", 150))
	assert.Equal(t, 100, len([]rune(got)))
}
