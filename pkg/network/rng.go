package network

import "math/rand/v2"

// Stream identifiers keep independent random sequences apart under one seed.
const (
	StreamBuild uint64 = iota + 1
	StreamSeeding
	StreamIntervention
	StreamProgression
)

// NewRand returns the PCG generator for (seed, stream).
func NewRand(seed int64, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), stream))
}

// Mix derives a stream id from a timestep and an agent id (splitmix64 finaliser).
func Mix(t int, id int64) uint64 {
	z := uint64(t)<<32 ^ uint64(id) + 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
