package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFormat(t *testing.T) {
	g := NewGenerator(PatientPrefix)

	for i := 0; i < 100; i++ {
		tok, err := g.Generate()
		require.NoError(t, err)
		assert.True(t, WellFormed(tok), "token %q is malformed", tok)
		assert.True(t, Valid(tok, PatientPrefix))
		assert.False(t, Valid(tok, PartnershipPrefix))
		assert.Len(t, tok, 18)
	}
}

func TestGenerateUniqueness(t *testing.T) {
	g := NewGenerator(PatientPrefix)
	seen := make(map[string]struct{}, 10000)

	for i := 0; i < 10000; i++ {
		tok, err := g.Generate()
		require.NoError(t, err)
		_, dup := seen[tok]
		require.False(t, dup, "duplicate token %q after %d generations", tok, i)
		seen[tok] = struct{}{}
	}
}

func TestPartnershipPrefix(t *testing.T) {
	g := NewGenerator(PartnershipPrefix)
	tok, err := g.Generate()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tok, "PRT-"))
	assert.True(t, Valid(tok, PartnershipPrefix))
}

func TestValidRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"PAT",
		"PAT-1234",
		"PAT-1234-5678",
		"PAT-1234-5678-90AB-CDEF",
		"pat-1234-5678-90ab",
		"PAT-12 4-5678-90AB",
		"PAT-1234-5678-90A",
		"PATX1234-5678-90AB",
	}
	for _, c := range cases {
		assert.False(t, WellFormed(c), "expected %q to be rejected", c)
	}

	assert.True(t, WellFormed("PRT-AAAA-0000-ZZ99"))
	assert.False(t, Valid("PRT-AAAA-0000-ZZ99", PatientPrefix))
}
