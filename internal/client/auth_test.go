package client

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patternguard/console/internal/session"
	"github.com/patternguard/console/internal/testutil"
)

func TestLogin_Success(t *testing.T) {
	c, fake, sess := newTestClient(t, "")

	res, err := c.Login(context.Background(), testutil.AdminUsername, testutil.AdminPassword)
	require.NoError(t, err)
	assert.Equal(t, testutil.AdminUsername, res.Username)

	token, ok := sess.Token()
	assert.True(t, ok)
	assert.Equal(t, testutil.AdminToken, token)

	last, ok := fake.LastRequest()
	require.True(t, ok)
	assert.Equal(t, http.MethodPost, last.Method)
	assert.Equal(t, "/auth/login", last.Path)
	assert.Equal(t, "application/json", last.ContentType)
	assert.Empty(t, last.Authorization)
	assert.NotEmpty(t, last.RequestID)
}

func TestLogin_InvalidCredentialsKeepsSession(t *testing.T) {
	c, _, sess := newTestClient(t, "previous")

	res, err := c.Login(context.Background(), testutil.AdminUsername, "wrong")
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())
	assert.True(t, IsKind(err, KindResponse))
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))

	token, _ := sess.Token()
	assert.Equal(t, "previous", token)
}

func TestLogin_EmptyBodyFallsBack(t *testing.T) {
	c, fake, sess := newTestClient(t, "")
	fake.Respond(http.MethodPost, "/auth/login", http.StatusInternalServerError, "")

	_, err := c.Login(context.Background(), "admin", "x")
	require.Error(t, err)
	assert.Equal(t, LoginFailedMessage, err.Error())
	assert.False(t, sess.Active())
}

func TestLogin_RequiresBothFields(t *testing.T) {
	c, fake, _ := newTestClient(t, "")

	for _, creds := range [][2]string{{"", "pw"}, {"admin", ""}, {"   ", "pw"}} {
		_, err := c.Login(context.Background(), creds[0], creds[1])
		assert.True(t, IsKind(err, KindValidation), "creds %q", creds)
	}
	assert.Equal(t, 0, fake.RequestCount())
}

func TestLogin_NetworkError(t *testing.T) {
	sess := session.New(session.NewMemoryProfile())
	c := New(Options{BaseURL: deadURL(t), Timeout: 2 * time.Second}, sess, nil)

	_, err := c.Login(context.Background(), "admin", "pw")
	require.Error(t, err)
	assert.Equal(t, NetworkErrorMessage, err.Error())
	assert.True(t, IsKind(err, KindTransport))
	assert.False(t, sess.Active())
}

func TestLogin_MalformedSuccessBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "welcome!"},
		{"no token", `{"user":"admin"}`},
		{"blank token", `{"token":"  "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake, sess := newTestClient(t, "")
			fake.Respond(http.MethodPost, "/auth/login", http.StatusOK, tt.body)

			_, err := c.Login(context.Background(), "admin", "pw")
			require.Error(t, err)
			assert.Equal(t, NetworkErrorMessage, err.Error())
			assert.False(t, sess.Active())
		})
	}
}

func TestLogout(t *testing.T) {
	c, _, sess := newTestClient(t, "abc123")

	require.NoError(t, c.Logout())
	assert.False(t, sess.Active())

	// Logging out twice is fine.
	require.NoError(t, c.Logout())
}
