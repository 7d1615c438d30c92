package provider

import "strings"

// systemFlagTags maps the IMAP system flags that carry meaning for topics
// to their tag names. \Deleted and \Recent are deliberately absent.
var systemFlagTags = map[string]string{
	`\Seen`:     "seen",
	`\Answered`: "answered",
	`\Flagged`:  "flagged",
	`\Draft`:    "draft",
}

// FlagTag returns the tag for a system flag and whether one exists.
// Flag names are matched case-insensitively.
func FlagTag(flag string) (string, bool) {
	for f, tag := range systemFlagTags {
		if strings.EqualFold(f, flag) {
			return tag, true
		}
	}
	return "", false
}

// TagFlag returns the system flag for a tag, or "".
func TagFlag(tag string) string {
	for f, t := range systemFlagTags {
		if t == tag {
			return f
		}
	}
	return ""
}

// IsSystemName reports whether name is a backslash-prefixed IMAP system
// flag or attribute.
func IsSystemName(name string) bool {
	return strings.HasPrefix(name, `\`)
}

// IsInboxName reports whether name denotes the inbox.
func IsInboxName(name string) bool {
	return strings.EqualFold(name, LabelInboxName) || strings.EqualFold(name, LabelInbox)
}
