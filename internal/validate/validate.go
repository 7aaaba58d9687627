// Package validate holds the pure input checks shared by signup,
// profile editing, add-contact and message send. Every function
// returns "" for valid input or a human-readable reason; none of
// them touch the network or panic on expected-invalid input.
package validate

import (
	"regexp"
	"strings"
)

const (
	UsernameMinLen = 3
	UsernameMaxLen = 30
	PasswordMinLen = 6
	MessageMaxLen  = 1000
)

var (
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	upperRe    = regexp.MustCompile(`[A-Z]`)
	digitRe    = regexp.MustCompile(`[0-9]`)
)

// Email checks the minimal local@domain shape. It deliberately does
// not attempt full RFC 5322 — the store lookup is the real arbiter of
// whether an address belongs to anyone.
func Email(email string) string {
	if !emailRe.MatchString(email) {
		return "Invalid email format"
	}
	return ""
}

// Username: 3-30 characters, letters, digits and underscores only.
func Username(username string) string {
	if len(strings.TrimSpace(username)) < UsernameMinLen {
		return "Username must be at least 3 characters"
	}
	if len(username) > UsernameMaxLen {
		return "Username must be at most 30 characters"
	}
	if !usernameRe.MatchString(username) {
		return "Username can only contain letters, numbers, and underscores"
	}
	return ""
}

// Password enforces the strict policy: at least 6 characters, one
// uppercase letter and one digit.
func Password(password string) string {
	if len(password) < PasswordMinLen {
		return "Password must be at least 6 characters"
	}
	if !upperRe.MatchString(password) {
		return "Password must contain at least one uppercase letter"
	}
	if !digitRe.MatchString(password) {
		return "Password must contain at least one number"
	}
	return ""
}

// MessageText checks message body content: non-empty after trimming,
// bounded at 1000 characters. Image-only messages skip this entirely —
// the caller only validates text that is actually present.
func MessageText(text string) string {
	if strings.TrimSpace(text) == "" {
		return "Message cannot be empty"
	}
	if len(text) > MessageMaxLen {
		return "Message must be less than 1000 characters"
	}
	return ""
}

// NormalizeEmail trims whitespace and lowercases. Applied before any
// email comparison or lookup so casing never splits one address into
// two records.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
