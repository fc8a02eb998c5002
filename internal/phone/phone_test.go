package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "trunk zero", raw: "0825551234", want: "+27825551234"},
		{name: "spaced trunk zero", raw: "082 555 1234", want: "+27825551234"},
		{name: "already international", raw: "+27 82-555-1234", want: "+27825551234"},
		{name: "foreign international untouched", raw: "+263771234567", want: "+263771234567"},
		{name: "bare subscriber digits", raw: "825551234", want: "+27825551234"},
		{name: "bare digits with country code", raw: "27825551234", want: "+27825551234"},
		{name: "double zero international", raw: "0027825551234", want: "+27825551234"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.raw, "27")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "   ", "abc", "08255x1234", "12", "+1234567890123456"} {
		_, err := Normalize(raw, "27")
		assert.ErrorIs(t, err, ErrInvalid, "input %q", raw)
	}
}
