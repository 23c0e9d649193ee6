package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		required bool
		wantErr  bool
	}{
		{"run id", "run_01HX3Y5Z7Q8R9S0T1V2W3X4Y5Z", true, false},
		{"empty optional", "", false, false},
		{"empty required", "", true, true},
		{"path traversal", "../etc", true, true},
		{"too long", strings.Repeat("a", MaxIDLength+1), true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id, "id", tt.required)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCode(t *testing.T) {
	assert.NoError(t, ValidateCode("console.log(1)"))
	assert.NoError(t, ValidateCode(""))
	assert.NoError(t, ValidateCode("   \n"))
	assert.ErrorIs(t, ValidateCode(strings.Repeat("x", MaxCodeSize+1)), ErrValidation)
	assert.ErrorIs(t, ValidateCode("bad \xff utf8"), ErrValidation)
}

func TestValidateAnswer(t *testing.T) {
	assert.NoError(t, ValidateAnswer(nil))

	empty := ""
	assert.NoError(t, ValidateAnswer(&empty))

	big := strings.Repeat("a", MaxAnswerSize+1)
	assert.ErrorIs(t, ValidateAnswer(&big), ErrValidation)
}

func TestHasher(t *testing.T) {
	h := NewHasher()
	assert.Equal(t, "ef46db3751d8e999", h.HashString(""))
	assert.Equal(t, h.HashString("a"), h.Hash([]byte("a")))
	assert.Len(t, h.HashString("console.log(1)"), 16)
	assert.Len(t, h.ShortHash("console.log(1)"), 12)
	assert.NotEqual(t, h.ShortHash("a"), h.ShortHash("b"))
}
