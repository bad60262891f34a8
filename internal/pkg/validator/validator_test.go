package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quotr/internal/pkg/errors"
)

func TestName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "acme", "acme", false},
		{"trimmed", "  launch party \n", "launch party", false},
		{"unicode", "Café Zürich", "Café Zürich", false},
		{"empty", "", "", true},
		{"blank", "   ", "", true},
		{"control", "ac\x00me", "", true},
		{"too long", strings.Repeat("x", MaxNameLength+1), "", true},
		{"at limit", strings.Repeat("é", MaxNameLength), strings.Repeat("é", MaxNameLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Name("name", tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmails(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantErr bool
	}{
		{"single", []string{"ada@example.com"}, false},
		{"several", []string{"ada@example.com", "grace@example.org"}, false},
		{"none", nil, true},
		{"empty list", []string{}, true},
		{"blank entry", []string{"ada@example.com", ""}, true},
		{"not an address", []string{"ada"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Emails("to", tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStructUsesJSONNames(t *testing.T) {
	type input struct {
		Limit int    `json:"limit" validate:"min=1,max=100"`
		Note  string `json:"note" validate:"max=4"`
	}

	assert.NoError(t, Struct(input{Limit: 10}))

	err := Struct(input{Limit: 101})
	require.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "limit")

	err = Struct(input{Limit: 1, Note: "too long"})
	require.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "note must be at most 4 characters")
}
