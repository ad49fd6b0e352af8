package enrichment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlausiblePhone(t *testing.T) {
	valid := []string{
		"5551234567",
		"(555) 123-4567",
		"1-555-123-4567",
		"+1 555 123 4567",
	}
	for _, p := range valid {
		assert.True(t, PlausiblePhone(p), "expected plausible: %q", p)
	}

	invalid := []string{
		"",
		"12345",
		"0551234567",  // area code starts with 0
		"5550234567",  // exchange starts with 0
		"5555555555",  // all same digit: scraper decoy
		"555123456789",
	}
	for _, p := range invalid {
		assert.False(t, PlausiblePhone(p), "expected implausible: %q", p)
	}
}

func TestPlausibleEmail(t *testing.T) {
	assert.True(t, PlausibleEmail("jane.doe@acme.io"))
	assert.True(t, PlausibleEmail(" jane@acme.io "))

	assert.False(t, PlausibleEmail("not-an-email"))
	assert.False(t, PlausibleEmail("jane@example.com"))
	assert.False(t, PlausibleEmail("noreply@acme.io"))
	assert.False(t, PlausibleEmail(""))
}

func TestPlausibleAge(t *testing.T) {
	assert.True(t, PlausibleAge(18))
	assert.True(t, PlausibleAge(110))
	assert.False(t, PlausibleAge(17))
	assert.False(t, PlausibleAge(111))
	assert.False(t, PlausibleAge(0))
}
