package phone

import "strings"

// Normalize reduces a phone number to a stable dedup key: digits only, with a
// leading "+" preserved when present. Providers deliver the same caller as
// "+1 (555) 010-0199", "15550100199" or "555.010.0199" across versions, so
// customer matching must never compare raw strings.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}

	out := b.String()
	if out == "" || out == "+" {
		// Anonymous/withheld callers come through as "anonymous" or empty;
		// keep the trimmed original so they still group together.
		return strings.ToLower(s)
	}
	return out
}
