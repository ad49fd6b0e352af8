package enrichment

import "context"

// DNC scrub statuses.
const (
	DNCStatusSkipped = "SKIPPED"
	DNCStatusClean   = "CLEAN"
	DNCStatusListed  = "LISTED"
)

// DNCResult is the outcome of a do-not-call scrub.
type DNCResult struct {
	Status     string `json:"dnc_status"`
	CanContact bool   `json:"can_contact"`
}

// DNCScrubber checks a phone number against do-not-call registries.
type DNCScrubber interface {
	Scrub(ctx context.Context, phone string) (*DNCResult, error)
}

// NoopDNCScrubber is the placeholder scrubber: no registry integration is
// wired yet, so every lead passes with status SKIPPED. Compliance must not
// silently depend on this until a real scrubber replaces it.
type NoopDNCScrubber struct{}

func (NoopDNCScrubber) Scrub(ctx context.Context, phone string) (*DNCResult, error) {
	return &DNCResult{Status: DNCStatusSkipped, CanContact: true}, nil
}
