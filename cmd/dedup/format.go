package main

import (
	"fmt"
	"time"
)

// formatCount formats a count with K/M suffixes for readability
func formatCount(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	} else if n < 1_000_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	} else {
		return fmt.Sprintf("%.2fM", float64(n)/1_000_000)
	}
}

// formatMillis renders a millisecond duration rounded for display
func formatMillis(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return d.String()
	}
	return d.Round(10 * time.Millisecond).String()
}
