package montecarlo

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/dd0wney/cluso-epinet/pkg/disease"
)

// Status is the outcome of one seed.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCorrupted Status = "corrupted"
	StatusCancelled Status = "cancelled"
)

// SeedResult summarises one seed.
type SeedResult struct {
	Seed        int64
	Status      Status
	Err         error
	Steps       int
	Halted      bool
	FinalCounts disease.Counts
	// Incomplete is set when a sink lost at least one record of the seed.
	Incomplete bool
	Duration   time.Duration
}

// Aggregate is the cross-seed distribution of compartments at a timestep.
type Aggregate struct {
	Timestep int
	Seeds    int
	Mean     [disease.NumStates]float64
	StdDev   [disease.NumStates]float64
}

// Report is the outcome of a batch.
type Report struct {
	RunID   string
	Results []SeedResult
	// Timeline aggregates completed seeds. Seeds that halted early hold
	// their final counts for the remaining timesteps.
	Timeline []Aggregate
	Duration time.Duration
}

// StatusCounts returns the number of seeds per status.
func (r *Report) StatusCounts() map[Status]int {
	out := make(map[Status]int, 4)
	for _, res := range r.Results {
		out[res.Status]++
	}
	return out
}

// Result returns the result of seed.
func (r *Report) Result(seed int64) (SeedResult, bool) {
	for _, res := range r.Results {
		if res.Seed == seed {
			return res, true
		}
	}
	return SeedResult{}, false
}

func aggregate(results []SeedResult, traj [][]disease.Counts, horizon int) []Aggregate {
	var series [][]disease.Counts
	longest := 0
	for i, res := range results {
		if res.Status != StatusCompleted || len(traj[i]) == 0 {
			continue
		}
		series = append(series, traj[i])
		longest = max(longest, len(traj[i]))
	}
	if len(series) == 0 {
		return nil
	}
	steps := min(longest, horizon+1)
	out := make([]Aggregate, steps)
	values := make([]float64, len(series))
	for t := range steps {
		agg := Aggregate{Timestep: t, Seeds: len(series)}
		for s := range disease.NumStates {
			for i, counts := range series {
				values[i] = float64(counts[min(t, len(counts)-1)][s])
			}
			mean, std := stat.MeanStdDev(values, nil)
			if len(values) < 2 || math.IsNaN(std) {
				std = 0
			}
			agg.Mean[s] = mean
			agg.StdDev[s] = std
		}
		out[t] = agg
	}
	return out
}
