package utils

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify turns a display name into a lowercase, URL-safe slug.
// Diacritics are stripped ("Ána" becomes "ana"), runs of other characters collapse to a single '-'.
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}

	slug := b.String()
	if len(slug) > MaxHandleBaseLength {
		slug = strings.TrimRight(slug[:MaxHandleBaseLength], "-")
	}
	if slug == "" {
		return DefaultHandleBase
	}
	return slug
}

// NextHandle returns base if it is not taken, otherwise base-N with the smallest free N >= 1.
func NextHandle(base string, taken []string) string {
	used := make(map[string]struct{}, len(taken))
	for _, h := range taken {
		used[h] = struct{}{}
	}
	if _, ok := used[base]; !ok {
		return base
	}
	for n := 1; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if _, ok := used[candidate]; !ok {
			return candidate
		}
	}
}
