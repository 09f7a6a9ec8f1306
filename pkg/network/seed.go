package network

import (
	"slices"

	"github.com/dd0wney/cluso-epinet/pkg/config"
	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
)

// SeedInitial places init.Exposed agents in Exposed and init.Infectious agents
// in Presymptomatic at timestep 0, chosen uniformly without replacement from
// the seeding stream. It returns the seeded ids in ascending order.
func SeedInitial(net *ContactNetwork, seed int64, init config.InitialSeeding, prog *disease.Progression) ([]int64, error) {
	want := init.Exposed + init.Infectious
	if want > net.Len() {
		return nil, simerr.Config("seed initial").Seed(seed).Field("initial").
			Msg("%d seeded agents requested, network has %d", want, net.Len())
	}
	r := NewRand(seed, StreamSeeding)
	agents := net.Agents()
	perm := r.Perm(len(agents))

	seeded := make([]int64, 0, want)
	for i, idx := range perm[:want] {
		a := agents[idx]
		to := disease.Exposed
		if i >= init.Exposed {
			to = disease.Presymptomatic
		}
		if err := a.Seed(to, 0, prog.Model(a.Bracket), r); err != nil {
			return nil, simerr.WithSeed(err, seed)
		}
		seeded = append(seeded, a.ID)
	}
	slices.Sort(seeded)
	return seeded, nil
}
