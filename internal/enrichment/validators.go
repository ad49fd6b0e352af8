package enrichment

import (
	"regexp"
	"strings"
)

var emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// PlausiblePhone reports whether a string looks like a usable US phone
// number: 10 digits, or 11 starting with 1, with a real area code.
func PlausiblePhone(phone string) bool {
	d := digitsOnly(phone)
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) != 10 {
		return false
	}
	// Area codes and exchanges never start with 0 or 1.
	if d[0] < '2' || d[3] < '2' {
		return false
	}
	// All-same-digit numbers are scraper decoys.
	if strings.Count(d, string(d[0])) == len(d) {
		return false
	}
	return true
}

// PlausibleEmail reports whether a string looks like a deliverable address.
func PlausibleEmail(email string) bool {
	email = strings.TrimSpace(email)
	if !emailRe.MatchString(email) {
		return false
	}
	lower := strings.ToLower(email)
	for _, junk := range []string{"example.com", "test.com", "noreply", "no-reply"} {
		if strings.Contains(lower, junk) {
			return false
		}
	}
	return true
}

// PlausibleAge reports whether an age is in the insurable adult range.
func PlausibleAge(age float64) bool {
	return age >= 18 && age <= 110
}
