package config

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/dd0wney/cluso-epinet/pkg/simerr"
)

// FractionTolerance is how far a ward's age fractions may drift from 1.
const FractionTolerance = 0.01

// OpenEnded marks a bracket with no upper bound ("80+").
const OpenEnded = -1

// Ward is one row of the neighbourhood table.
type Ward struct {
	Population int      `yaml:"population"`
	Neighbours []string `yaml:"neighbours"`
	Lat        *float64 `yaml:"lat"`
	Lng        *float64 `yaml:"lng"`
}

// HasCentroid reports whether the ward carries coordinates.
func (w Ward) HasCentroid() bool {
	return w.Lat != nil && w.Lng != nil
}

// NeighbourhoodData maps ward id to its size and adjacency.
type NeighbourhoodData map[string]Ward

// WardIDs returns ward ids in sorted order.
func (n NeighbourhoodData) WardIDs() []string {
	return slices.Sorted(maps.Keys(n))
}

// Adjacent reports whether b is listed as a neighbour of a (in either direction).
func (n NeighbourhoodData) Adjacent(a, b string) bool {
	return slices.Contains(n[a].Neighbours, b) || slices.Contains(n[b].Neighbours, a)
}

// AgeBracket is one histogram column. Hi is inclusive or OpenEnded.
type AgeBracket struct {
	Label    string
	Lo, Hi   int
	Fraction float64
}

// AgeHistogram is a ward's age distribution in column order.
type AgeHistogram []AgeBracket

// Sum returns the total of the fractions.
func (h AgeHistogram) Sum() float64 {
	var s float64
	for _, b := range h {
		s += b.Fraction
	}
	return s
}

// Weights returns the fractions in bracket order.
func (h AgeHistogram) Weights() []float64 {
	w := make([]float64, len(h))
	for i, b := range h {
		w[i] = b.Fraction
	}
	return w
}

// AgeDistribution maps ward id to its age histogram.
type AgeDistribution map[string]AgeHistogram

// ParseBracket parses labels such as "0-9", "80+" and "5".
func ParseBracket(label string) (lo, hi int, err error) {
	s := strings.TrimSpace(label)
	switch {
	case strings.HasSuffix(s, "+"):
		lo, err = strconv.Atoi(strings.TrimSuffix(s, "+"))
		hi = OpenEnded
	case strings.Contains(s, "-"):
		parts := strings.SplitN(s, "-", 2)
		lo, err = strconv.Atoi(strings.TrimSpace(parts[0]))
		if err == nil {
			hi, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		}
	default:
		lo, err = strconv.Atoi(s)
		hi = lo
	}
	if err != nil {
		return 0, 0, fmt.Errorf("age bracket %q: %w", label, err)
	}
	if lo < 0 || (hi != OpenEnded && hi < lo) {
		return 0, 0, fmt.Errorf("age bracket %q: invalid bounds", label)
	}
	return lo, hi, nil
}

// ValidateTables checks that every ward in hoods has a matching, normalised
// age histogram and that adjacency only names known wards.
func ValidateTables(hoods NeighbourhoodData, ages AgeDistribution) error {
	if len(hoods) == 0 {
		return simerr.Config("validate tables").Msg("neighbourhood data is empty")
	}
	for _, id := range hoods.WardIDs() {
		ward := hoods[id]
		if ward.Population < 0 {
			return simerr.Config("validate tables").Field("ward "+id).Msg("negative population %d", ward.Population)
		}
		for _, nb := range ward.Neighbours {
			if _, ok := hoods[nb]; !ok {
				return simerr.Config("validate tables").Field("ward "+id).Msg("unknown neighbour %q", nb)
			}
		}

		hist, ok := ages[id]
		if !ok || len(hist) == 0 {
			return simerr.Config("validate tables").Field("ward " + id).Msg("no age distribution for ward")
		}
		for _, b := range hist {
			if !(b.Fraction >= 0) {
				return simerr.Config("validate tables").Field("ward "+id).Msg("bracket %s has fraction %g", b.Label, b.Fraction)
			}
		}
		if sum := hist.Sum(); math.Abs(sum-1) > FractionTolerance {
			return simerr.Config("validate tables").Field("ward "+id).Msg("age fractions sum to %.4f, want 1", sum)
		}
	}
	return nil
}
