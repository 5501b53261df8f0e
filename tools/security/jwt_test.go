package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("unit-test-secret")

func TestGenerateVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions(testSecret)
	tok, exp, err := Generate(opts, Identity{UserID: 7, Username: "alice", ProfilePicture: "a.png"}, nil)
	require.NoError(t, err)
	assert.False(t, exp.IsZero())

	claims, err := Verify(opts, tok)
	require.NoError(t, err)
	id, err := claims.Identity()
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 7, Username: "alice", ProfilePicture: "a.png"}, id)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, _, err := Generate(DefaultOptions(testSecret), Identity{UserID: 7}, nil)
	require.NoError(t, err)

	_, err = Verify(DefaultOptions([]byte("other")), tok)
	assert.Error(t, err)
}

func TestParseUnverifiedReadsIdentity(t *testing.T) {
	tok, _, err := Generate(DefaultOptions(testSecret), Identity{UserID: 42, Username: "bob"}, []string{"chat"})
	require.NoError(t, err)

	claims, err := ParseUnverified(tok)
	require.NoError(t, err)
	id, err := claims.Identity()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.UserID)
	assert.Equal(t, "bob", id.Username)
	assert.Empty(t, id.ProfilePicture)
}

func TestGenerateRequiresUser(t *testing.T) {
	_, _, err := Generate(DefaultOptions(testSecret), Identity{}, nil)
	assert.Error(t, err)
}

func TestUnsupportedAlg(t *testing.T) {
	opts := DefaultOptions(testSecret)
	opts.Alg = "RS256"
	_, _, err := Generate(opts, Identity{UserID: 1}, nil)
	assert.Error(t, err)
}
