package network

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/golang/geo/s2"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/dd0wney/cluso-epinet/pkg/config"
	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
)

// earthRadiusKm converts s2 angles to great-circle kilometres.
const earthRadiusKm = 6371.0088

type bracketRange struct {
	label  string
	lo, hi int
}

type builder struct {
	params *config.Parameters
	hoods  config.NeighbourhoodData
	ages   config.AgeDistribution
	rng    *rand.Rand
	net    *ContactNetwork

	wards   []string
	members map[string][]int64
	ageOf   []int
}

// Build generates the contact network for one seed. It is deterministic in
// seed and performs no I/O.
func Build(seed int64, params *config.Parameters, hoods config.NeighbourhoodData, ages config.AgeDistribution) (*ContactNetwork, error) {
	if err := config.ValidateTables(hoods, ages); err != nil {
		return nil, simerr.WithSeed(err, seed)
	}
	b := &builder{
		params:  params,
		hoods:   hoods,
		ages:    ages,
		rng:     NewRand(seed, StreamBuild),
		net:     New(),
		wards:   hoods.WardIDs(),
		members: make(map[string][]int64, len(hoods)),
	}

	steps := []func() error{b.populate, b.households, b.neighbourhoods, b.workGroups, b.randomMixing}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, simerr.WithSeed(err, seed)
		}
	}
	b.net.Finalize()
	return b.net, nil
}

func (b *builder) weight(layer string) float64 {
	return b.params.Layer(layer).Weight
}

// populate creates agents ward by ward, drawing bracket then age.
func (b *builder) populate() error {
	maxAge := b.params.Network.MaxAge
	scale := b.params.Network.PopulationScale

	var next int64
	for _, ward := range b.wards {
		hist := b.ages[ward]
		ranges := make([]bracketRange, len(hist))
		for i, br := range hist {
			lo, hi, err := config.ParseBracket(br.Label)
			if err != nil {
				return simerr.Config("build population").Field("ward " + ward).Wrap(err)
			}
			if hi == config.OpenEnded || hi > maxAge {
				hi = max(lo, maxAge)
			}
			ranges[i] = bracketRange{label: br.Label, lo: lo, hi: hi}
		}

		n := max(1, int(math.Round(float64(b.hoods[ward].Population)*scale)))
		pick := distuv.NewCategorical(hist.Weights(), b.rng)
		for range n {
			r := ranges[int(pick.Rand())]
			age := r.lo + b.rng.IntN(r.hi-r.lo+1)
			a := disease.NewAgent(next, ward, age, r.label)
			if err := b.net.AddAgent(a); err != nil {
				return err
			}
			b.members[ward] = append(b.members[ward], next)
			b.ageOf = append(b.ageOf, age)
			next++
		}
	}
	return nil
}

func (b *builder) shuffled(ids []int64) []int64 {
	out := slices.Clone(ids)
	b.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func (b *builder) clique(ids []int64, layer string) error {
	w := b.weight(layer)
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			if _, err := b.net.AddEdge(ids[i], ids[j], layer, w); err != nil {
				return err
			}
		}
	}
	return nil
}

// households groups each ward's agents with sizes 1+Poisson(mean-1).
func (b *builder) households() error {
	np := b.params.Network
	size := distuv.Poisson{Lambda: np.HouseholdMeanSize - 1, Src: b.rng}

	for _, ward := range b.wards {
		pool := b.shuffled(b.members[ward])
		for len(pool) > 0 {
			k := 1
			if size.Lambda > 0 {
				k += int(size.Rand())
			}
			k = min(k, np.HouseholdMaxSize, len(pool))
			if err := b.clique(pool[:k], config.LayerHousehold); err != nil {
				return err
			}
			pool = pool[k:]
		}
	}
	return nil
}

// neighbourhoods draws contacts from the agent's ward and adjacent wards.
func (b *builder) neighbourhoods() error {
	k := b.params.Network.NeighbourhoodDegree()
	if k == 0 {
		return nil
	}
	w := b.weight(config.LayerNeighbourhood)

	for _, ward := range b.wards {
		pool := slices.Clone(b.members[ward])
		nbs := slices.Clone(b.hoods[ward].Neighbours)
		slices.Sort(nbs)
		for _, nb := range slices.Compact(nbs) {
			if nb != ward {
				pool = append(pool, b.members[nb]...)
			}
		}
		if len(pool) < 2 {
			continue
		}
		for _, id := range b.members[ward] {
			for range k {
				other := pool[b.rng.IntN(len(pool))]
				if other == id {
					continue
				}
				if _, err := b.net.AddEdge(id, other, config.LayerNeighbourhood, w); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// workGroups splits school-age and working-age agents into fixed-size groups.
func (b *builder) workGroups() error {
	np := b.params.Network
	inRange := func(age int, r [2]int) bool { return age >= r[0] && age <= r[1] }

	for _, ward := range b.wards {
		var school, work []int64
		for _, id := range b.members[ward] {
			age := b.ageOf[id]
			switch {
			case inRange(age, np.SchoolAge):
				school = append(school, id)
			case inRange(age, np.WorkAge):
				work = append(work, id)
			}
		}
		for _, cohort := range [][]int64{school, work} {
			pool := b.shuffled(cohort)
			for start := 0; start < len(pool); start += np.WorkGroupSize {
				end := min(start+np.WorkGroupSize, len(pool))
				if err := b.clique(pool[start:end], config.LayerWork); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// randomMixing adds long-range edges between ward pairs chosen by a gravity
// model w_ij = size_i * size_j / d_ij^2.
func (b *builder) randomMixing() error {
	total := b.net.Len()
	want := int(math.Round(float64(total) * b.params.Network.RandomContactRate() / 2))
	if want == 0 || total < 2 {
		return nil
	}

	type pair struct{ i, j int }
	var pairs []pair
	var weights []float64
	for i, wi := range b.wards {
		for j := i; j < len(b.wards); j++ {
			wj := b.wards[j]
			si, sj := float64(len(b.members[wi])), float64(len(b.members[wj]))
			d := 1.0
			if i != j {
				d = b.distance(wi, wj)
			}
			pairs = append(pairs, pair{i, j})
			weights = append(weights, si*sj/(d*d))
		}
	}

	pick := distuv.NewCategorical(weights, b.rng)
	w := b.weight(config.LayerRandom)
	added := 0
	for attempt := 0; added < want && attempt < 4*want; attempt++ {
		p := pairs[int(pick.Rand())]
		from := b.members[b.wards[p.i]]
		to := b.members[b.wards[p.j]]
		x := from[b.rng.IntN(len(from))]
		y := to[b.rng.IntN(len(to))]
		if x == y {
			continue
		}
		ok, err := b.net.AddEdge(x, y, config.LayerRandom, w)
		if err != nil {
			return err
		}
		if ok {
			added++
		}
	}
	return nil
}

// distance is the great-circle distance in km between ward centroids, or
// 1 for adjacent and 2 for other wards without coordinates. Never below 1.
func (b *builder) distance(a, c string) float64 {
	wa, wc := b.hoods[a], b.hoods[c]
	if wa.HasCentroid() && wc.HasCentroid() {
		pa := s2.PointFromLatLng(s2.LatLngFromDegrees(*wa.Lat, *wa.Lng))
		pc := s2.PointFromLatLng(s2.LatLngFromDegrees(*wc.Lat, *wc.Lng))
		return max(1, pa.Distance(pc).Radians()*earthRadiusKm)
	}
	if b.hoods.Adjacent(a, c) {
		return 1
	}
	return 2
}
