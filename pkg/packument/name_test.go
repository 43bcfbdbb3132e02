package packument

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"left-pad", true},
		{"@scope/pkg", true},
		{"JSONStream", true},
		{"http", true},
		{"a.b_c~d", true},
		{"", false},
		{" padded", false},
		{".hidden", false},
		{"_private", false},
		{"node_modules", false},
		{"favicon.ico", false},
		{"with space", false},
		{"@scope/", false},
		{"@scope/a/b", false},
		{"@sco pe/pkg", false},
		{"no/scope", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidName(tt.name))
		})
	}
}
