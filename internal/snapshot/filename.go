package snapshot

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Filename derives a snapshot file name from the capture target (pass,
// satellite or observation identifier) and the tuned center frequency,
// e.g. "ISS_pass_145.80MHz_1f0e....png".
func Filename(target string, centerFrequency float64) string {
	return fmt.Sprintf("%s_%s_%s.png",
		sanitize(target), frequencyLabel(centerFrequency), uuid.NewString())
}

// sanitize strips a target identifier down to filesystem-safe runes.
func sanitize(target string) string {
	var b strings.Builder
	lastUnderscore := false

	for _, r := range strings.TrimSpace(target) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	s := strings.TrimSuffix(b.String(), "_")
	if s == "" {
		return "snapshot"
	}
	return s
}

// frequencyLabel renders a short-form frequency, "145.80MHz".
func frequencyLabel(hz float64) string {
	value, suffix := humanize.ComputeSI(hz)
	return fmt.Sprintf("%0.2f%sHz", value, suffix)
}
