package service

import (
	"time"

	"balance-checker/internal/models"
)

const (
	PhaseSchema    = "schema"
	PhaseImport    = "import"
	PhaseScan      = "scan"
	PhaseReconcile = "reconcile"
	PhasePoll      = "poll"
	PhaseValuation = "valuation"
	PhaseReport    = "report"
)

// Options bounds the fan-out phases.
type Options struct {
	Concurrency int
	Timeout     time.Duration
	// SkipPartial leaves a ticker untouched when any of its wallet reads
	// failed, instead of correcting toward an under-counted total.
	SkipPartial bool
}

func (o Options) concurrency() int {
	if o.Concurrency <= 0 {
		return 4
	}
	return o.Concurrency
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 10 * time.Second
	}
	return o.Timeout
}

func diag(phase, subject string, err error) models.Diagnostic {
	return models.Diagnostic{Phase: phase, Subject: subject, Message: err.Error()}
}
