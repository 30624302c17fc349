package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexString_Unmarshal(t *testing.T) {
	var rec FeedbackRecord
	body := `{"id":10101,"message":"text","issue":null,"url":"https://a.example.com","date":true}`
	require.NoError(t, json.Unmarshal([]byte(body), &rec))

	assert.Equal(t, FlexString("10101"), rec.ID)
	assert.Equal(t, FlexString("text"), rec.Message)
	assert.Equal(t, FlexString(""), rec.Issue)
	assert.Equal(t, FlexString(""), rec.Mail, "absent field stays empty")
	assert.Equal(t, "true", rec.Date.String())

	var nested FeedbackRecord
	require.NoError(t, json.Unmarshal([]byte(`{"message":{ "nested": 1 },"issue":[1, "two"]}`), &nested))
	assert.Equal(t, FlexString(`{"nested":1}`), nested.Message)
	assert.Equal(t, FlexString(`[1,"two"]`), nested.Issue)
}

func TestUploadRequest_Name(t *testing.T) {
	tests := []struct {
		name string
		req  UploadRequest
		want string
	}{
		{"explicit name wins", UploadRequest{FileName: "ext.zip", Platform: "chrome", Version: "1.0"}, "ext.zip"},
		{"derived from platform and version", UploadRequest{Platform: "chrome", Version: "1.0"}, "chrome-1.0.zip"},
		{"derived name is normalized", UploadRequest{Platform: " FireFox ", Version: " 2.1 "}, "firefox-2.1.zip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.Name())
		})
	}
}

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform("  Chrome ", DefaultPlatforms)
	require.NoError(t, err)
	assert.Equal(t, PlatformChrome, p)

	p, err = ParsePlatform("dummy-browser", DefaultPlatforms)
	require.NoError(t, err)
	assert.Equal(t, PlatformDummyBrowser, p)

	_, err = ParsePlatform("opera", DefaultPlatforms)
	assert.ErrorContains(t, err, "chrome, firefox, edge, dummy-browser")

	_, err = ParsePlatform("", DefaultPlatforms)
	assert.Error(t, err)

	p, err = ParsePlatform("opera", append(DefaultPlatforms[:len(DefaultPlatforms):len(DefaultPlatforms)], "opera"))
	require.NoError(t, err)
	assert.Equal(t, Platform("opera"), p)
}
