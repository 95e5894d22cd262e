/*
Copyright 2020 GramLabs, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package rng derives deterministic random number streams from a study seed.
// Every trial proposal consumes the stream keyed by (seed, trial number) so a
// study replays identically under a fixed seed and a fixed dispatch order.
package rng

import (
	"math/rand"
)

// source is a splitmix64 generator; it is tiny, has no correlation between
// streams with different keys, and satisfies rand.Source64.
type source struct {
	state uint64
}

// New returns a rand.Rand seeded for the supplied trial of a study.
func New(seed, trialNumber int64) *rand.Rand {
	return rand.New(NewSource(seed, trialNumber))
}

// NewSource returns the raw source for the supplied trial of a study.
func NewSource(seed, trialNumber int64) rand.Source64 {
	// Mix the stream key in so adjacent trial numbers do not yield
	// adjacent states.
	s := &source{state: uint64(seed)}
	s.state ^= mix(uint64(trialNumber) + 0x9e3779b97f4a7c15)
	return s
}

func (s *source) Seed(seed int64) { s.state = uint64(seed) }

func (s *source) Int63() int64 { return int64(s.Uint64() >> 1) }

func (s *source) Uint64() uint64 {
	s.state += 0x9e3779b97f4a7c15
	return mix(s.state)
}

func mix(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
