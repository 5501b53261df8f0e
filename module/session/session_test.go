package session

import (
	"errors"
	"testing"

	"PPClient/tools/errs"
	"PPClient/tools/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromToken(t *testing.T) {
	tok, _, err := security.Generate(security.DefaultOptions([]byte("s")),
		security.Identity{UserID: 5, Username: "eve", ProfilePicture: "e.png"}, nil)
	require.NoError(t, err)

	s, err := FromToken(" " + tok + " ")
	require.NoError(t, err)
	assert.Equal(t, int64(5), s.UserID)
	assert.Equal(t, "eve", s.Username)
	assert.Equal(t, "e.png", s.ProfilePicture)
	assert.Equal(t, tok, s.Token)
	assert.True(t, s.Valid())
}

func TestFromTokenRejectsGarbage(t *testing.T) {
	_, err := FromToken("")
	assert.True(t, errors.Is(err, errs.ErrUnauthorized))

	_, err = FromToken("not-a-jwt")
	assert.True(t, errors.Is(err, errs.ErrUnauthorized))
}
