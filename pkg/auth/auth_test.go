package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateToken(t *testing.T) {
	a, err := New("correct horse")
	require.NoError(t, err)

	token, err := a.IssueToken("correct horse")
	require.NoError(t, err)
	assert.Len(t, token, 64)
	assert.True(t, a.Validate(token))

	// Each issue mints a distinct token; both stay valid.
	second, err := a.IssueToken("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, token, second)
	assert.True(t, a.Validate(token))
	assert.True(t, a.Validate(second))
}

func TestWrongPassword(t *testing.T) {
	a, err := New("secret")
	require.NoError(t, err)

	_, err = a.IssueToken("not-secret")
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestValidateUnknownToken(t *testing.T) {
	a, err := New("secret")
	require.NoError(t, err)
	assert.False(t, a.Validate(""))
	assert.False(t, a.Validate("deadbeef"))
}

func TestRevoke(t *testing.T) {
	a, err := New("secret")
	require.NoError(t, err)

	token, err := a.IssueToken("secret")
	require.NoError(t, err)
	require.True(t, a.Validate(token))

	a.Revoke(token)
	assert.False(t, a.Validate(token))
}
