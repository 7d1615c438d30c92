package provider

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// MaxTagLength is the longest tag CleanTag produces, in runes.
const MaxTagLength = 30

var lower = cases.Lower(language.Und)

// tagForbidden lists characters stripped from tag names.
const tagForbidden = "/?#[]@!$&'()*+,;=.%\\`^|{}\"<>"

// CleanTag turns an arbitrary label or folder name into a tag name:
// NFKC-normalized, lower case, whitespace runs collapsed to a single dash,
// URL-unsafe characters removed.
func CleanTag(name string) string {
	name = lower.String(norm.NFKC.String(strings.TrimSpace(name)))

	var b strings.Builder
	dash := false
	for _, r := range name {
		switch {
		case unicode.IsSpace(r) || r == '-':
			dash = true
			continue
		case strings.ContainsRune(tagForbidden, r):
			continue
		case unicode.IsControl(r):
			continue
		}
		if dash && b.Len() > 0 {
			b.WriteByte('-')
		}
		dash = false
		b.WriteRune(r)
	}

	tag := b.String()
	if runes := []rune(tag); len(runes) > MaxTagLength {
		tag = strings.TrimRight(string(runes[:MaxTagLength]), "-")
	}
	return tag
}
