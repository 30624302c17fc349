package client

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := newResponseError("login", 401, []byte("Invalid credentials"), LoginFailedMessage)

	assert.Equal(t, "Invalid credentials", err.Error())
	assert.Equal(t, 401, err.Status)
	assert.Contains(t, err.Detail(), "login: response (status 401): Invalid credentials")
}

func TestError_BlankBodyUsesFallback(t *testing.T) {
	err := newResponseError("login", 500, []byte("  \n"), LoginFailedMessage)
	assert.Equal(t, LoginFailedMessage, err.Error())
}

func TestError_KindAndStatusThroughWrapping(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	wrapped := fmt.Errorf("refreshing: %w", newTransportError("list files", cause))

	assert.True(t, IsKind(wrapped, KindTransport))
	assert.False(t, IsKind(wrapped, KindResponse))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, 0, StatusOf(wrapped))
	assert.Equal(t, NetworkErrorMessage, errors.Unwrap(wrapped).Error())

	assert.Equal(t, 404, StatusOf(newResponseError("delete file", 404, []byte("File not found"), "")))
	assert.Equal(t, 0, StatusOf(errors.New("plain")))
}
