// Package router implements the GPS provider router: an epsilon-greedy,
// per-lead-state bandit over the Magazine of people-search providers, with
// per-provider and per-carrier health accounting in Redis.
package router

import "strings"

// Magazine is the fixed ordered set of people-search providers.
var Magazine = []string{
	"FastPeopleSearch",
	"TruePeopleSearch",
	"ZabaSearch",
	"SearchPeopleFree",
	"ThatsThem",
	"AnyWho",
}

// DefaultProvider is returned when every provider is ineligible, so callers
// never see an empty selection.
const DefaultProvider = "TruePeopleSearch"

// providerDomains maps Magazine provider names to their canonical domains.
var providerDomains = map[string]string{
	"FastPeopleSearch": "fastpeoplesearch.com",
	"TruePeopleSearch": "truepeoplesearch.com",
	"ZabaSearch":       "zabasearch.com",
	"SearchPeopleFree": "searchpeoplefree.com",
	"ThatsThem":        "thatsthem.com",
	"AnyWho":           "anywho.com",
}

// ProviderDomain returns the canonical domain for a provider. Unknown names
// degrade to lowercased-name.com so a stray provider still yields a usable key.
func ProviderDomain(provider string) string {
	if d, ok := providerDomains[provider]; ok {
		return d
	}
	d := strings.ToLower(strings.ReplaceAll(provider, " ", ""))
	if !strings.Contains(d, ".") {
		d += ".com"
	}
	return d
}

// InMagazine reports whether the provider is part of the Magazine.
func InMagazine(provider string) bool {
	_, ok := providerDomains[provider]
	return ok
}
