package constants

// This file contains the per-cluster outcomes reported in the run summary.
const (
	OutcomeCreated = "created"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)
