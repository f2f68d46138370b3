package detector

import "time"

// Status is the result kind of one detector invocation.
type Status string

const (
	StatusMatched  Status = "matched"
	StatusNoMatch  Status = "no_match"
	StatusFailed   Status = "failed"
	StatusTimedOut Status = "timed_out"
)

// Outcome records what happened when one detector ran against a log directory.
// Report is set only for StatusMatched, Reason only for failures and timeouts.
type Outcome struct {
	DetectorID string        `json:"detector_id"`
	Status     Status        `json:"status"`
	Report     *ErrorReport  `json:"report,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Duration   time.Duration `json:"duration"`
}

func Matched(id string, report ErrorReport, took time.Duration) Outcome {
	return Outcome{DetectorID: id, Status: StatusMatched, Report: &report, Duration: took}
}

func NoMatch(id string, took time.Duration) Outcome {
	return Outcome{DetectorID: id, Status: StatusNoMatch, Duration: took}
}

func Failed(id, reason string, took time.Duration) Outcome {
	return Outcome{DetectorID: id, Status: StatusFailed, Reason: reason, Duration: took}
}

func TimedOut(id string, budget time.Duration) Outcome {
	return Outcome{
		DetectorID: id,
		Status:     StatusTimedOut,
		Reason:     "exceeded " + budget.String(),
		Duration:   budget,
	}
}
