// Package models contains domain types for the PatternGuard console.
package models

import (
	"fmt"
	"strings"
)

// Platform identifies the browser an extension build targets.
type Platform string

const (
	PlatformChrome       Platform = "chrome"
	PlatformFirefox      Platform = "firefox"
	PlatformEdge         Platform = "edge"
	PlatformDummyBrowser Platform = "dummy-browser"
)

// DefaultPlatforms lists the platforms the backend accepts out of the box.
var DefaultPlatforms = []Platform{
	PlatformChrome,
	PlatformFirefox,
	PlatformEdge,
	PlatformDummyBrowser,
}

// ParsePlatform normalizes user input and checks it against allowed.
func ParsePlatform(s string, allowed []Platform) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return "", fmt.Errorf("platform is required")
	}
	for _, a := range allowed {
		if a == p {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q (allowed: %s)", s, JoinPlatforms(allowed))
}

// JoinPlatforms renders a platform list for messages.
func JoinPlatforms(ps []Platform) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}
