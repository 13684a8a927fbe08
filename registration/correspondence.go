package registration

import (
	"math/rand"
	"sort"

	"github.com/kwv/pcreg/registration/spatialindex"
)

// Matcher searches two descriptor sets for candidate correspondences.
// The canonical path is mutual nearest-neighbor in descriptor space
// with an optional ratio test and tuple-consistency filter; UseLegacyMatcher
// selects a simpler one-directional cross-check kept for parity comparisons.
type Matcher struct {
	cfg     Config
	backend spatialindex.Backend
	rng     *rand.Rand
}

// NewMatcher builds a Matcher. seed fixes the PRNG used by the tuple filter
// so results are reproducible across runs with identical inputs.
func NewMatcher(cfg Config, backend spatialindex.Backend, seed int64) *Matcher {
	return &Matcher{cfg: cfg, backend: backend, rng: rand.New(rand.NewSource(seed))}
}

// Match finds candidate correspondences between src and tgt descriptor
// sets. When tgt is larger than src the roles are swapped internally so
// the outer NN sweep always runs over the larger side, and the index
// orientation is restored before returning: the result is always (I, J)
// in the caller's src/tgt frame. The returned set is sorted by (I, J) for
// determinism and is capped at Config.NumMaxCorr.
func (m *Matcher) Match(src, tgt DescriptorSet) CorrespondenceSet {
	a, b := src, tgt
	swapped := len(tgt) > len(src)
	if swapped {
		a, b = tgt, src
	}

	var out CorrespondenceSet
	if m.cfg.UseLegacyMatcher {
		out = m.crossCheckOnly(a, b)
	} else {
		out = m.mutualNN(a, b)
	}

	if swapped {
		for k := range out {
			out[k].I, out[k].J = out[k].J, out[k].I
		}
	}

	if m.cfg.TupleScale > 0 {
		out = m.tupleFilter(src, tgt, out)
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].I != out[b].I {
			return out[a].I < out[b].I
		}
		return out[a].J < out[b].J
	})
	if len(out) > m.cfg.NumMaxCorr {
		out = out[:m.cfg.NumMaxCorr]
	}
	return out
}

// mutualNN pairs each source keypoint with its nearest neighbor in tgt,
// optionally gated by the Lowe ratio test between each point's best and
// second-best match. When RobinMode is None there is no downstream pruning
// stage to cull false positives, so the reverse nearest-neighbor check (i
// must also be tgt[j]'s nearest neighbor in src) is enforced strictly.
// Otherwise the tentative (i, j) pair is kept even when the reverse check
// fails: the matcher deliberately over-approximates, and the
// compatibility-graph pruning is what actually removes the false matches.
func (m *Matcher) mutualNN(src, tgt DescriptorSet) CorrespondenceSet {
	tgtIdx := spatialindex.New(m.backend)
	tgtIdx.Build(descriptorCoords(tgt))
	srcIdx := spatialindex.New(m.backend)
	srcIdx.Build(descriptorCoords(src))

	srcToTgt := make([]int, len(src))
	for i, kp := range src {
		nn, dist := tgtIdx.Query(kp.Descriptor[:], 2)
		if len(nn) == 0 {
			srcToTgt[i] = -1
			continue
		}
		if m.cfg.UseRatioTest && len(nn) > 1 && dist[0] > 0 {
			// Query distances are squared, so the d1/d2 < 0.9 ratio gate
			// compares against 0.9^2.
			if dist[0]/dist[1] >= 0.9*0.9 {
				srcToTgt[i] = -1
				continue
			}
		}
		srcToTgt[i] = nn[0]
	}

	tgtToSrc := make([]int, len(tgt))
	for j, kp := range tgt {
		nn, _ := srcIdx.Query(kp.Descriptor[:], 1)
		if len(nn) == 0 {
			tgtToSrc[j] = -1
			continue
		}
		tgtToSrc[j] = nn[0]
	}

	strict := m.cfg.RobinMode == RobinNone

	var out CorrespondenceSet
	for i := range src {
		j := srcToTgt[i]
		if j < 0 || j >= len(tgt) {
			continue
		}
		if tgtToSrc[j] == i || !strict {
			out = append(out, Correspondence{I: i, J: j})
		}
	}
	return out
}

// crossCheckOnly matches each source keypoint to its single nearest target
// neighbor without requiring the reverse match, a looser and noisier path
// kept for comparison against mutualNN.
func (m *Matcher) crossCheckOnly(src, tgt DescriptorSet) CorrespondenceSet {
	tgtIdx := spatialindex.New(m.backend)
	tgtIdx.Build(descriptorCoords(tgt))

	var out CorrespondenceSet
	for i, kp := range src {
		nn, _ := tgtIdx.Query(kp.Descriptor[:], 1)
		if len(nn) == 0 {
			continue
		}
		out = append(out, Correspondence{I: i, J: nn[0]})
	}
	return out
}

// tupleFilter rejects correspondence triples whose pairwise source/target
// edge-length ratios fall outside [TupleScale, 1/TupleScale], the same
// geometric-consistency idea as star-alignment's triangle matching, applied
// here to randomly sampled correspondence triples rather than exhaustive
// triangles since the correspondence count can be large.
func (m *Matcher) tupleFilter(src, tgt DescriptorSet, corr CorrespondenceSet) CorrespondenceSet {
	n := len(corr)
	if n < 3 {
		return corr
	}

	const rounds = 4
	keep := make([]bool, n)
	for round := 0; round < rounds; round++ {
		perm := m.rng.Perm(n)
		for t := 0; t+2 < n; t += 3 {
			a, b, c := perm[t], perm[t+1], perm[t+2]
			if tupleConsistent(src, tgt, corr[a], corr[b], corr[c], m.cfg.TupleScale) {
				keep[a], keep[b], keep[c] = true, true, true
			}
		}
	}

	var out CorrespondenceSet
	for i, k := range keep {
		if k {
			out = append(out, corr[i])
		}
	}
	if len(out) == 0 {
		// Every triple failed (tiny or degenerate input): fail open rather
		// than returning an empty set the solver would reject outright.
		return corr
	}
	return out
}

func tupleConsistent(src, tgt DescriptorSet, a, b, c Correspondence, scale float64) bool {
	sab := srcDist(src, a.I, b.I)
	sbc := srcDist(src, b.I, c.I)
	sac := srcDist(src, a.I, c.I)
	tab := tgtDist(tgt, a.J, b.J)
	tbc := tgtDist(tgt, b.J, c.J)
	tac := tgtDist(tgt, a.J, c.J)

	return ratioWithin(sab, tab, scale) && ratioWithin(sbc, tbc, scale) && ratioWithin(sac, tac, scale)
}

func ratioWithin(a, b, scale float64) bool {
	if a == 0 || b == 0 {
		return a == b
	}
	r := a / b
	return r >= scale && r <= 1/scale
}

func srcDist(src DescriptorSet, i, j int) float64 {
	return posDist(src[i].Position, src[j].Position)
}

func tgtDist(tgt DescriptorSet, i, j int) float64 {
	return posDist(tgt[i].Position, tgt[j].Position)
}

func posDist(a, b Vec3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return sqrtf(dx*dx + dy*dy + dz*dz)
}

func descriptorCoords(d DescriptorSet) [][]float64 {
	out := make([][]float64, len(d))
	for i, kp := range d {
		c := make([]float64, DescriptorDims)
		copy(c, kp.Descriptor[:])
		out[i] = c
	}
	return out
}
