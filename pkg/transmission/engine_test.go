package transmission

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-epinet/pkg/config"
	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/intervention"
	"github.com/dd0wney/cluso-epinet/pkg/network"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
)

func fptr(v float64) *float64 { return &v }

func params(layers map[string]float64) *config.Parameters {
	p := config.Parameters{Layers: map[string]config.LayerParams{}}
	for name, prob := range layers {
		p.Layers[name] = config.LayerParams{TransmissionProbability: prob}
	}
	p.Infectiousness = config.Infectiousness{Presymptomatic: fptr(1), Symptomatic: fptr(1), Asymptomatic: fptr(1)}
	return p.WithDefaults()
}

func model(t *testing.T) *disease.BracketModel {
	t.Helper()
	prog, err := disease.NewProgression((config.Parameters{}).WithDefaults())
	require.NoError(t, err)
	return prog.Model("")
}

// fourNode builds 0-1 household, 1-2 and 1-3 work, with agent 0 infectious.
func fourNode(t *testing.T) *network.ContactNetwork {
	t.Helper()
	net := network.New()
	for i := range 4 {
		require.NoError(t, net.AddAgent(disease.NewAgent(int64(i), "W1", 30, "")))
	}
	for _, e := range []struct {
		a, b  int64
		layer string
	}{{0, 1, config.LayerHousehold}, {1, 2, config.LayerWork}, {1, 3, config.LayerWork}} {
		_, err := net.AddEdge(e.a, e.b, e.layer, 1)
		require.NoError(t, err)
	}
	net.Finalize()
	a, _ := net.Agent(0)
	require.NoError(t, a.Seed(disease.Presymptomatic, 0, model(t), rand.New(rand.NewPCG(1, 1))))
	return net
}

// pairedFourNode builds 0-1 household and 2-3 random, with agent 0 infectious.
func pairedFourNode(t *testing.T) *network.ContactNetwork {
	t.Helper()
	net := network.New()
	for i := range 4 {
		require.NoError(t, net.AddAgent(disease.NewAgent(int64(i), "W1", 30, "")))
	}
	_, err := net.AddEdge(0, 1, config.LayerHousehold, 1)
	require.NoError(t, err)
	_, err = net.AddEdge(2, 3, config.LayerRandom, 1)
	require.NoError(t, err)
	net.Finalize()
	a, _ := net.Agent(0)
	require.NoError(t, a.Seed(disease.Symptomatic, 0, model(t), rand.New(rand.NewPCG(1, 1))))
	return net
}

func TestStep_HouseholdPairOnly(t *testing.T) {
	net := pairedFourNode(t)
	p := params(map[string]float64{config.LayerHousehold: 1, config.LayerRandom: 0})

	exposed, err := New(p, 42).Step(context.Background(), net, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, exposed)

	a1, _ := net.Agent(1)
	require.NoError(t, a1.Expose(1, model(t), rand.New(rand.NewPCG(2, 2))))
	for id, want := range []disease.State{disease.Symptomatic, disease.Exposed, disease.Susceptible, disease.Susceptible} {
		a, _ := net.Agent(int64(id))
		assert.Equal(t, want, a.State(), "agent %d", id)
	}
}

func TestStep_ZeroInfectiousness(t *testing.T) {
	net := pairedFourNode(t)
	p := params(map[string]float64{config.LayerHousehold: 1})
	p.Infectiousness = config.Infectiousness{Presymptomatic: fptr(0), Symptomatic: fptr(0), Asymptomatic: fptr(0)}
	p = p.WithDefaults()

	exposed, err := New(p, 42).Step(context.Background(), net, 1)
	require.NoError(t, err)
	assert.Empty(t, exposed)
}

func TestStep_FourNodeScenario(t *testing.T) {
	net := fourNode(t)
	p := params(map[string]float64{config.LayerHousehold: 1, config.LayerWork: 0})
	e := New(p, 42)

	exposed, err := e.Step(context.Background(), net, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, exposed)

	m := model(t)
	r := rand.New(rand.NewPCG(2, 2))
	for _, id := range exposed {
		a, _ := net.Agent(id)
		require.NoError(t, a.Expose(1, m, r))
	}
	a1, _ := net.Agent(1)
	a2, _ := net.Agent(2)
	a3, _ := net.Agent(3)
	assert.Equal(t, disease.Exposed, a1.State())
	assert.Equal(t, disease.Susceptible, a2.State())
	assert.Equal(t, disease.Susceptible, a3.State())
}

func TestStep_DoesNotMutate(t *testing.T) {
	net := fourNode(t)
	e := New(params(map[string]float64{config.LayerHousehold: 1}), 1)
	before := net.Counts()
	_, err := e.Step(context.Background(), net, 1)
	require.NoError(t, err)
	assert.Equal(t, before, net.Counts())
}

func TestStep_ProbabilityBound(t *testing.T) {
	const trials = 10000
	const p = 0.3

	// One infector with many susceptible leaves, one trial per leaf.
	net := network.New()
	require.NoError(t, net.AddAgent(disease.NewAgent(0, "W1", 30, "")))
	for i := int64(1); i <= trials; i++ {
		require.NoError(t, net.AddAgent(disease.NewAgent(i, "W1", 30, "")))
		_, err := net.AddEdge(0, i, config.LayerRandom, 1)
		require.NoError(t, err)
	}
	net.Finalize()
	src, _ := net.Agent(0)
	require.NoError(t, src.Seed(disease.Symptomatic, 0, model(t), rand.New(rand.NewPCG(5, 5))))

	exposed, err := New(params(map[string]float64{config.LayerRandom: p}), 2024).Step(context.Background(), net, 1)
	require.NoError(t, err)
	rate := float64(len(exposed)) / trials
	assert.InDelta(t, p, rate, 0.05)
}

func TestStep_IdempotentExposure(t *testing.T) {
	// Two infectors share susceptible neighbour 2 with certain transmission.
	net := network.New()
	for i := range 3 {
		require.NoError(t, net.AddAgent(disease.NewAgent(int64(i), "W1", 30, "")))
	}
	_, err := net.AddEdge(0, 2, config.LayerHousehold, 1)
	require.NoError(t, err)
	_, err = net.AddEdge(1, 2, config.LayerWork, 1)
	require.NoError(t, err)
	net.Finalize()
	m := model(t)
	r := rand.New(rand.NewPCG(1, 2))
	for _, id := range []int64{0, 1} {
		a, _ := net.Agent(id)
		require.NoError(t, a.Seed(disease.Symptomatic, 0, m, r))
	}

	res, err := New(params(map[string]float64{config.LayerHousehold: 1, config.LayerWork: 1}), 3).
		StepDetailed(context.Background(), net, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, res.Exposed)
	assert.Equal(t, map[string]int{config.LayerHousehold: 1}, res.ByLayer)
}

func TestStep_InterventionsGateEdges(t *testing.T) {
	net := fourNode(t)
	a1, _ := net.Agent(1)
	require.NoError(t, a1.Seed(disease.Symptomatic, 0, model(t), rand.New(rand.NewPCG(1, 1))))
	p := params(map[string]float64{config.LayerHousehold: 1, config.LayerWork: 1})

	sched, err := intervention.NewSchedule([]config.InterventionSpec{
		{Kind: config.InterventionLayerScale, Layer: config.LayerWork, Factor: 0},
	})
	require.NoError(t, err)
	st := sched.NewState()
	require.NoError(t, sched.Multipliers(1, st, net))

	exposed, err := New(p, 1, WithInterventions(st)).Step(context.Background(), net, 1)
	require.NoError(t, err)
	assert.Empty(t, exposed, "work layer scaled to zero")

	noPolicy, err := intervention.NewSchedule(nil)
	require.NoError(t, err)
	st = noPolicy.NewState()
	a1.Isolate(1)
	exposed, err = New(p, 1, WithInterventions(st)).Step(context.Background(), net, 1)
	require.NoError(t, err)
	assert.Empty(t, exposed, "isolated infector keeps only household contacts")
}

func TestStep_ProbabilityOutOfRange(t *testing.T) {
	net := fourNode(t)
	p := params(map[string]float64{config.LayerHousehold: 1})
	p.Infectiousness.Presymptomatic = fptr(2)

	_, err := New(p, 9).Step(context.Background(), net, 1)
	require.Error(t, err)
	assert.True(t, simerr.IsStateCorruption(err))
	assert.Contains(t, err.Error(), "agent=0")
}

func TestStep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(params(nil), 1).Step(ctx, fourNode(t), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

// randomNetwork builds a dense random graph with a fraction of infectious agents.
func randomNetwork(t *testing.T, seed uint64, n int) *network.ContactNetwork {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, 7))
	net := network.New()
	for i := range n {
		require.NoError(t, net.AddAgent(disease.NewAgent(int64(i), "W1", 30, "")))
	}
	for range n * 4 {
		a, b := int64(r.IntN(n)), int64(r.IntN(n))
		if a == b {
			continue
		}
		_, err := net.AddEdge(a, b, config.KnownLayers[r.IntN(len(config.KnownLayers))], 0.5+r.Float64()/2)
		require.NoError(t, err)
	}
	net.Finalize()
	m := model(t)
	for _, a := range net.Agents() {
		if r.Float64() < 0.2 {
			require.NoError(t, a.Seed(disease.Symptomatic, 0, m, r))
		}
	}
	return net
}

func TestStep_SequentialEqualsParallel(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	p := params(map[string]float64{
		config.LayerHousehold: 0.4, config.LayerNeighbourhood: 0.2,
		config.LayerWork: 0.3, config.LayerRandom: 0.1,
	})

	properties.Property("worker count does not change exposures", prop.ForAll(
		func(seed uint64, step int, workers int) bool {
			net := randomNetwork(t, seed, 300)
			seq, err := New(p, int64(seed), WithWorkers(1)).Step(context.Background(), net, step)
			if err != nil {
				return false
			}
			par, err := New(p, int64(seed), WithWorkers(workers)).Step(context.Background(), net, step)
			if err != nil {
				return false
			}
			return assert.ObjectsAreEqual(seq, par)
		},
		gen.UInt64Range(0, 1<<32),
		gen.IntRange(1, 100),
		gen.IntRange(2, 8),
	))

	properties.TestingRun(t)
}
