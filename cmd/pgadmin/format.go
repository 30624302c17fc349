package main

import (
	"fmt"
	"math"
	"strings"
	"time"
)

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// formatBytes renders n with two decimals in the largest fitting unit.
func formatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	return fmt.Sprintf("%.2f %s", float64(n)/math.Pow(1024, float64(i)), sizeUnits[i])
}

// truncate shortens s to n runes for table cells, flattening newlines.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
