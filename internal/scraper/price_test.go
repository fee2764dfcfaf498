package scraper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"$1,234.56", 1234},
		{"1234", 1234},
		{" 1,234 ", 1234},
		{"$0", 0},
		{"$99.99", 99},
		{"\n\t$45\n", 45},
		{"US$ 2.500", 2},
		{"9223372036854775807.9", 9223372036854775807},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizePrice(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePrice_Malformed(t *testing.T) {
	for _, input := range []string{"", "free", "$", " , ", "1.2.3", "...", "99999999999999999999", "$1,000,000,000,000,000,000,000"} {
		t.Run(input, func(t *testing.T) {
			_, err := NormalizePrice(input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedPrice))
		})
	}
}
