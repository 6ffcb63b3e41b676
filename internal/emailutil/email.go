package emailutil

import (
	"strings"
)

// Normalize lowercases and trims an email address for comparison.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AllowList is a set of permitted email addresses. An empty list allows everyone.
type AllowList struct {
	emails map[string]struct{}
}

// NewAllowList builds an allow-list from the given addresses, skipping blanks.
func NewAllowList(emails []string) AllowList {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if n := Normalize(e); n != "" {
			set[n] = struct{}{}
		}
	}
	return AllowList{emails: set}
}

// Open reports whether the list places no restriction.
func (a AllowList) Open() bool {
	return len(a.emails) == 0
}

// Allows reports whether email may sign in.
func (a AllowList) Allows(email string) bool {
	if a.Open() {
		return true
	}
	_, ok := a.emails[Normalize(email)]
	return ok
}
