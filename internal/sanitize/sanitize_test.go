package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Ada Lovelace", "Ada Lovelace"},
		{"trims", "  Ada  ", "Ada"},
		{"strips tags", "<b>Ada</b>", "Ada"},
		{"drops script", `<script>alert(1)</script>Ada`, "Ada"},
		{"keeps ampersand", "Tom & Jerry", "Tom & Jerry"},
		{"drops control chars", "Ada\x07\x1b", "Ada"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.input))
		})
	}
}

func TestCSVCell(t *testing.T) {
	assert.Equal(t, "'=SUM(A1:A2)", CSVCell("=SUM(A1:A2)"))
	assert.Equal(t, "'@cmd", CSVCell("@cmd"))
	assert.Equal(t, "ada@example.com", CSVCell("ada@example.com"))
	assert.Equal(t, "", CSVCell(""))
}
