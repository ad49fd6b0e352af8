// Package models defines the core data types for the enrichment pipeline.
package models

import (
	"encoding/json"
	"strings"
)

// Lead is the open record that flows through the pipeline. Stations read and
// write string keys; well-known fields get typed accessors here. Keeping the
// record open (rather than one wide struct) keeps stations decoupled: a station
// declares the keys it requires and produces, nothing more.
type Lead map[string]any

// ParseLead decodes a lead from its queue JSON.
func ParseLead(raw []byte) (Lead, error) {
	var l Lead
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	return l, nil
}

// Clone returns a shallow copy. Stations must never mutate the original map
// they were handed; the engine merges deltas.
func (l Lead) Clone() Lead {
	out := make(Lead, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Merge copies every entry of delta into l.
func (l Lead) Merge(delta map[string]any) {
	for k, v := range delta {
		l[k] = v
	}
}

// GetString returns the first non-empty string value among keys.
func (l Lead) GetString(keys ...string) string {
	for _, k := range keys {
		if v, ok := l[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

// Has reports whether key exists with a non-nil value.
func (l Lead) Has(key string) bool {
	v, ok := l[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// DisplayName resolves the working name: name, fullName, or firstName+lastName.
func (l Lead) DisplayName() string {
	if n := l.GetString("name", "fullName", "Name", "full_name"); n != "" {
		return n
	}
	first := l.GetString("firstName", "first_name")
	last := l.GetString("lastName", "last_name")
	return strings.TrimSpace(first + " " + last)
}

// LinkedInURL returns the lead's LinkedIn URL under either key convention.
func (l Lead) LinkedInURL() string {
	return l.GetString("linkedinUrl", "linkedin_url")
}

// ID returns a stable identifier for retry accounting and poison tracking:
// the LinkedIn URL when present, otherwise the display name.
func (l Lead) ID() string {
	if u := l.LinkedInURL(); u != "" {
		return u
	}
	if n := l.DisplayName(); n != "" {
		return n
	}
	return "unknown"
}

// Company returns the lead's company under either key convention.
func (l Lead) Company() string {
	return l.GetString("company", "Company")
}

// Title returns the lead's job title under any of its key conventions.
func (l Lead) Title() string {
	return l.GetString("title", "Title", "headline", "job_title")
}

// IsHighValue reports whether the lead qualifies for cross-source
// corroboration: both company and title present.
func (l Lead) IsHighValue() bool {
	return l.Company() != "" && l.Title() != ""
}
