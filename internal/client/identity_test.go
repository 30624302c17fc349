package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patternguard/console/internal/testutil"
)

func TestParseIdentity(t *testing.T) {
	raw := testutil.IdentityToken("reporter@example.com", true)

	id, err := ParseIdentity("  " + raw + "\n")
	require.NoError(t, err)
	assert.Equal(t, raw, id.Token)
	assert.Equal(t, "reporter@example.com", id.Email)
	assert.True(t, id.EmailVerified)
	assert.Equal(t, "1098765", id.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), id.ExpiresAt, time.Minute)
}

func TestParseIdentity_Unverified(t *testing.T) {
	id, err := ParseIdentity(testutil.IdentityToken("reporter@example.com", false))
	require.Error(t, err)
	assert.Equal(t, VerifyEmailMessage, err.Error())
	assert.True(t, IsKind(err, KindValidation))
	require.NotNil(t, id)
	assert.Equal(t, "reporter@example.com", id.Email)
}

func TestParseIdentity_Garbage(t *testing.T) {
	for _, raw := range []string{"", "abc123", "a.b.c"} {
		id, err := ParseIdentity(raw)
		assert.Nil(t, id, raw)
		assert.True(t, IsKind(err, KindValidation), raw)
	}
}

func TestInspectToken(t *testing.T) {
	exp := time.Now().Add(-time.Minute).Truncate(time.Second)

	info, ok := InspectToken(testutil.AdminJWT("admin", exp))
	require.True(t, ok)
	assert.Equal(t, "admin", info.Subject)
	assert.Equal(t, "ROLE_ADMIN", info.Role)
	assert.True(t, info.ExpiresAt.Equal(exp))
	assert.True(t, info.Expired(time.Now()))

	_, ok = InspectToken(testutil.AdminToken)
	assert.False(t, ok)
}

func TestClaimBool(t *testing.T) {
	assert.True(t, claimBool(true))
	assert.True(t, claimBool("TRUE"))
	assert.False(t, claimBool("yes"))
	assert.False(t, claimBool(nil))
	assert.False(t, claimBool(1.0))
}
