package output

import (
	"time"

	"github.com/hupe1980/plsago"
)

// Summary is the JSON document written next to the final matrix.
type Summary struct {
	RunID                string             `json:"run_id"`
	Workers              int                `json:"workers"`
	Clusters             uint32             `json:"clusters"`
	Seed                 uint64             `json:"seed"`
	State                string             `json:"state"`
	Iterations           uint32             `json:"iterations"`
	InitialLogLikelihood float64            `json:"initial_log_likelihood"`
	FinalLogLikelihood   float64            `json:"final_log_likelihood"`
	Trace                []float64          `json:"trace"`
	NumericFaults        uint64             `json:"numeric_faults"`
	MessagesSent         uint64             `json:"messages_sent"`
	MessagesReceived     uint64             `json:"messages_received"`
	TotalSeconds         float64            `json:"total_seconds"`
	PhaseSeconds         map[string]float64 `json:"phase_seconds"`
	PeakRSSBytes         int64              `json:"peak_rss_bytes,omitempty"`
	FinishedAt           time.Time          `json:"finished_at"`
}

// NewSummary builds the summary of a finished run.
func NewSummary(r *plsago.Result) Summary {
	phases := make(map[string]float64, len(plsago.Phases()))
	for name, d := range r.Timings.Map() {
		phases[name] = d.Seconds()
	}
	return Summary{
		RunID:                r.RunID,
		Workers:              r.Workers,
		Clusters:             r.Clusters,
		Seed:                 r.Seed,
		State:                r.State.String(),
		Iterations:           r.Iterations,
		InitialLogLikelihood: r.InitialLogLikelihood,
		FinalLogLikelihood:   r.FinalLogLikelihood,
		Trace:                r.Trace,
		NumericFaults:        r.NumericFaults,
		MessagesSent:         r.MessagesSent,
		MessagesReceived:     r.MessagesReceived,
		TotalSeconds:         r.Timings.Total.Seconds(),
		PhaseSeconds:         phases,
		PeakRSSBytes:         r.Timings.PeakRSS,
		FinishedAt:           time.Now().UTC(),
	}
}
