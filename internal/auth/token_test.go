package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesign/pkg/interfaces"
	"codesign/pkg/types"
)

const testSecret = "test-secret-0123456789abcdef"

func TestNewHMACVerifierRejectsShortSecret(t *testing.T) {
	_, err := NewHMACVerifier("short")
	assert.Error(t, err)
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	v, err := NewHMACVerifier(testSecret)
	require.NoError(t, err)

	identity := &types.Identity{UserID: "alice", Name: "Alice", Role: types.RoleDesigner}
	token, err := v.Issue(identity, time.Hour)
	require.NoError(t, err)

	got, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, identity.UserID, got.UserID)
	assert.Equal(t, identity.Name, got.Name)
	assert.Equal(t, identity.Role, got.Role)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	v, err := NewHMACVerifier(testSecret)
	require.NoError(t, err)

	token, err := v.Issue(&types.Identity{UserID: "alice", Name: "Alice", Role: types.RoleDesigner}, time.Hour)
	require.NoError(t, err)

	// Flip a byte in the body; the signature no longer matches.
	tampered := "x" + token[1:]
	_, err = v.Verify(tampered)
	assert.ErrorIs(t, err, interfaces.ErrInvalidToken)

	// A token signed with a different secret fails the same way.
	other, err := NewHMACVerifier("another-secret-0123456789abcdef")
	require.NoError(t, err)
	foreign, err := other.Issue(&types.Identity{UserID: "alice", Name: "Alice", Role: types.RoleDesigner}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(foreign)
	assert.ErrorIs(t, err, interfaces.ErrInvalidToken)
}

func TestVerifyRejectsMalformedTokens(t *testing.T) {
	v, err := NewHMACVerifier(testSecret)
	require.NoError(t, err)

	for _, token := range []string{"", "nodot", "a.b", "!!!.###"} {
		_, err := v.Verify(token)
		assert.ErrorIs(t, err, interfaces.ErrInvalidToken, "token %q", token)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v, err := NewHMACVerifier(testSecret)
	require.NoError(t, err)

	token, err := v.Issue(&types.Identity{UserID: "alice", Name: "Alice", Role: types.RoleDesigner}, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, interfaces.ErrTokenExpired)
}

func TestIssueWithoutExpiry(t *testing.T) {
	v, err := NewHMACVerifier(testSecret)
	require.NoError(t, err)

	token, err := v.Issue(&types.Identity{UserID: "alice", Name: "Alice", Role: types.RoleObserver}, 0)
	require.NoError(t, err)
	require.True(t, strings.Contains(token, "."))

	_, err = v.Verify(token)
	assert.NoError(t, err)
}

func TestIssueRejectsInvalidIdentity(t *testing.T) {
	v, err := NewHMACVerifier(testSecret)
	require.NoError(t, err)

	_, err = v.Issue(&types.Identity{UserID: "bad user", Name: "x", Role: types.RoleDesigner}, time.Hour)
	assert.Error(t, err)
}
