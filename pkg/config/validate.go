package config

import (
	"fmt"
	"maps"
	"slices"

	"github.com/dd0wney/cluso-epinet/pkg/simerr"
	"github.com/dd0wney/cluso-epinet/pkg/validation"
)

var distributions = []string{DistFixed, DistExponential, DistLogNormal, DistGamma}

// Validate checks struct tags and cross-field rules. Failures are
// ConfigurationErrors listing every problem found.
func (p *Parameters) Validate() error {
	if err := validation.Struct(p); err != nil {
		return simerr.Config("validate parameters").Wrap(err)
	}

	cv := validation.NewConfigValidator("parameters")

	for _, name := range sortedKeys(p.Layers) {
		cv.OneOf("layers", name, KnownLayers)
	}

	n := p.Network
	cv.Custom("network.school_age", func() error { return checkAgeRange(n.SchoolAge, n.MaxAge) })
	cv.Custom("network.work_age", func() error { return checkAgeRange(n.WorkAge, n.MaxAge) })

	cv.Merge(validateBracket("disease.default", p.Bracket(""), true))
	for _, label := range sortedKeys(p.Disease.Brackets) {
		if _, _, err := ParseBracket(label); err != nil {
			cv.Custom("disease.brackets", func() error { return err })
			continue
		}
		cv.Merge(validateBracket("disease.brackets."+label, p.Bracket(label), false))
	}

	for i, iv := range p.Interventions {
		field := fmt.Sprintf("interventions[%d]", i)
		cv.When(iv.Kind == InterventionLayerScale, func(cv *validation.ConfigValidator) {
			cv.OneOf(field+".layer", iv.Layer, KnownLayers)
		})
		cv.Custom(field+".end", func() error {
			if iv.End != 0 && iv.End <= iv.Start {
				return fmt.Errorf("end %d must be after start %d", iv.End, iv.Start)
			}
			return nil
		})
	}

	if err := cv.Validate(); err != nil {
		return simerr.Config("validate parameters").Wrap(err)
	}
	return nil
}

func validateBracket(name string, b ResolvedBracket, requireAll bool) *validation.ConfigValidator {
	cv := validation.NewConfigValidator(name)
	cv.Probability("p_asymptomatic", b.PAsymptomatic)
	cv.Probability("p_death", b.PDeath)

	for _, key := range DwellKeys {
		spec, ok := b.Dwell[key]
		if !ok {
			if requireAll {
				cv.Custom("dwell."+key, func() error { return fmt.Errorf("missing distribution") })
			}
			continue
		}
		field := "dwell." + key
		cv.OneOf(field+".distribution", spec.Distribution, distributions)
		switch spec.Distribution {
		case DistFixed, DistExponential:
			cv.PositiveFloat(field+".mean", spec.Mean)
		case DistLogNormal:
			cv.PositiveFloat(field+".sigma", spec.Sigma)
		case DistGamma:
			cv.PositiveFloat(field+".shape", spec.Shape)
			cv.PositiveFloat(field+".mean", spec.Mean)
		}
	}
	return cv
}

func checkAgeRange(r [2]int, maxAge int) error {
	if r[0] < 0 || r[1] < r[0] || r[1] > maxAge {
		return fmt.Errorf("range %v must satisfy 0 <= lo <= hi <= %d", r, maxAge)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
