package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
)

func counts(susceptible, recovered int) disease.Counts {
	var c disease.Counts
	c[disease.Susceptible] = susceptible
	c[disease.Recovered] = recovered
	return c
}

func TestAggregate(t *testing.T) {
	results := []SeedResult{
		{Seed: 0, Status: StatusCompleted},
		{Seed: 1, Status: StatusCompleted},
		{Seed: 2, Status: StatusFailed},
	}
	traj := [][]disease.Counts{
		{counts(10, 0), counts(8, 2), counts(6, 4)},
		{counts(10, 0), counts(9, 1)}, // halted early
		{counts(99, 99)},
	}

	got := aggregate(results, traj, 5)
	if len(got) != 3 {
		t.Fatalf("expected 3 timesteps, got %d", len(got))
	}

	tests := []struct {
		step     int
		mean     float64
		stdDev   float64
		recMean  float64
		numSeeds int
	}{
		{0, 10, 0, 0, 2},
		{1, 8.5, math.Sqrt(0.5), 1.5, 2},
		{2, 7.5, math.Sqrt(4.5), 2.5, 2}, // seed 1 holds 9
	}
	for _, tt := range tests {
		agg := got[tt.step]
		if agg.Seeds != tt.numSeeds {
			t.Errorf("t=%d: seeds = %d, want %d", tt.step, agg.Seeds, tt.numSeeds)
		}
		if math.Abs(agg.Mean[disease.Susceptible]-tt.mean) > 1e-9 {
			t.Errorf("t=%d: mean = %g, want %g", tt.step, agg.Mean[disease.Susceptible], tt.mean)
		}
		if math.Abs(agg.StdDev[disease.Susceptible]-tt.stdDev) > 1e-9 {
			t.Errorf("t=%d: std = %g, want %g", tt.step, agg.StdDev[disease.Susceptible], tt.stdDev)
		}
		if math.Abs(agg.Mean[disease.Recovered]-tt.recMean) > 1e-9 {
			t.Errorf("t=%d: recovered mean = %g, want %g", tt.step, agg.Mean[disease.Recovered], tt.recMean)
		}
	}
}

func TestAggregate_SingleSeedHasZeroSpread(t *testing.T) {
	got := aggregate([]SeedResult{{Status: StatusCompleted}}, [][]disease.Counts{{counts(5, 0)}}, 3)
	if len(got) != 1 || got[0].StdDev[disease.Susceptible] != 0 {
		t.Fatalf("unexpected aggregate %+v", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"nil", nil, StatusCompleted},
		{"configuration", simerr.Config("build").Msg("no wards"), StatusFailed},
		{"corruption", simerr.Corruption("check").Agent(1).Msg("bad"), StatusCorrupted},
		{"wrapped corruption", fmt.Errorf("seed 2: %w", simerr.Corruption("check").Build()), StatusCorrupted},
		{"cancelled", context.Canceled, StatusCancelled},
		{"deadline", fmt.Errorf("step: %w", context.DeadlineExceeded), StatusCancelled},
		{"other", errors.New("disk"), StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}
