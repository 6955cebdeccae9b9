package smarthub

import "github.com/jgoulah/smarthubscraper/pkg/models"

// Outcome is the result of one usage fetch
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeBadStatus
	OutcomeTransportError
	OutcomeReadError
	OutcomeTooltipMissing
	OutcomeNotNumeric
)

var outcomeNames = map[Outcome]string{
	OutcomeOK:             "ok",
	OutcomeBadStatus:      "bad_status",
	OutcomeTransportError: "transport_error",
	OutcomeReadError:      "read_error",
	OutcomeTooltipMissing: "tooltip_missing",
	OutcomeNotNumeric:     "not_numeric",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// FetchResult describes a fetch attempt. Reading is nil unless Outcome is
// OutcomeOK.
type FetchResult struct {
	Reading    *models.UsageReading
	Outcome    Outcome
	StatusCode int   // 0 when no response was received
	Err        error // cause of a non-ok outcome, if any
}
