package execution

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the registry contents
type Stats struct {
	Runs           int          `json:"runs"`
	Running        int          `json:"running"`
	TimedOut       int          `json:"timed_out"`
	Abandoned      int          `json:"abandoned"`
	Messages       int          `json:"messages"`
	MessagesByKind map[Kind]int `json:"messages_by_kind"`
	MeanRunMillis  float64      `json:"mean_run_ms"`
	P95RunMillis   float64      `json:"p95_run_ms"`
}

// Stats computes counts and run duration statistics over completed runs
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		Runs:           len(r.runs),
		MessagesByKind: make(map[Kind]int),
	}

	durations := make([]float64, 0, len(r.runs))
	for _, run := range r.runs {
		switch run.Status {
		case StatusRunning:
			s.Running++
		case StatusTimedOut:
			s.TimedOut++
		case StatusAbandoned:
			s.Abandoned++
		}
		if run.FinishedAt != nil {
			durations = append(durations, float64(run.FinishedAt.Sub(run.CreatedAt).Microseconds())/1000)
		}
		s.Messages += len(run.Messages)
		for _, msg := range run.Messages {
			s.MessagesByKind[msg.Kind]++
		}
	}

	if len(durations) > 0 {
		sort.Float64s(durations)
		s.MeanRunMillis = stat.Mean(durations, nil)
		s.P95RunMillis = stat.Quantile(0.95, stat.Empirical, durations, nil)
	}
	return s
}
