package logits

import (
	"math"
	"math/rand"
)

// SamplerConfig configures the behaviour of a Sampler. A Temperature of zero
// selects deterministic argmax decoding. TopK and TopP are optional shortlist
// truncations; zero values disable them.
type SamplerConfig struct {
	Seed        int64
	Temperature float64
	TopK        int
	TopP        float64
}

// Sampler turns a logits vector into a token id. It is deterministic for a
// fixed seed; greedy sampling ignores the random source entirely.
type Sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	greedy bool

	topIdx []int
	topVal []float64
	prob   []float64
}

// NewSampler returns a new sampler with the provided configuration.
func NewSampler(cfg SamplerConfig) *Sampler {
	greedy := cfg.Temperature <= 0
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	return &Sampler{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		cfg:    cfg,
		greedy: greedy,
	}
}

// Sample draws a single index from the provided logits vector. With a zero
// temperature this is argmax (lowest index on ties). Otherwise logits are
// scaled by the inverse temperature and an index is drawn from the resulting
// categorical distribution, optionally truncated to the top k entries and to
// the smallest prefix whose cumulative probability reaches top-p.
func (s *Sampler) Sample(logits []float32) int {
	if s.greedy {
		return argmax(logits)
	}

	invTemp := 1.0 / s.cfg.Temperature
	k := s.cfg.TopK
	if k <= 0 || k > len(logits) {
		k = len(logits)
	}
	topIdx, topVal := s.topK(logits, k, invTemp)
	if len(topVal) == 0 {
		return 0
	}

	// Softmax over the shortlist, max-subtracted for stability.
	maxv := topVal[0]
	for _, v := range topVal[1:] {
		if v > maxv {
			maxv = v
		}
	}
	if cap(s.prob) < len(topVal) {
		s.prob = make([]float64, len(topVal))
	}
	prob := s.prob[:len(topVal)]
	var sum float64
	for i, v := range topVal {
		e := math.Exp(v - maxv)
		prob[i] = e
		sum += e
	}
	if sum == 0 {
		return topIdx[0]
	}
	for i := range prob {
		prob[i] /= sum
	}

	cut := len(prob)
	if s.cfg.TopP < 1 {
		var c float64
		for i := range prob {
			c += prob[i]
			if c >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
	}

	r := s.rng.Float64()
	var c float64
	for i := 0; i < cut; i++ {
		c += prob[i]
		if r <= c {
			return topIdx[i]
		}
	}
	return topIdx[cut-1]
}

// argmax returns the index of the maximum value. Ties resolve to the lowest
// index. It panics on an empty slice.
func argmax(x []float32) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}

// topK returns the indices and values of the k largest logits scaled by
// invTemp, ordered from largest to smallest. O(V*K), fine for small k.
func (s *Sampler) topK(logits []float32, k int, invTemp float64) ([]int, []float64) {
	if cap(s.topIdx) < k+1 {
		s.topIdx = make([]int, 0, k+1)
		s.topVal = make([]float64, 0, k+1)
	}
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]

	for i, l := range logits {
		v := float64(l) * invTemp

		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}

		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)
		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v

		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	s.topIdx = topIdx
	s.topVal = topVal
	return topIdx, topVal
}
