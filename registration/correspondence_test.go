package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/pcreg/registration/spatialindex"
)

func descriptorSetFrom(vals [][]float64, positions []Vec3) DescriptorSet {
	out := make(DescriptorSet, len(vals))
	for i, v := range vals {
		var d Descriptor
		copy(d[:], v)
		out[i] = Keypoint{SourceIdx: i, Position: positions[i], Descriptor: d}
	}
	return out
}

func TestMatcher_Match_MutualNearestNeighbor(t *testing.T) {
	cfg := DefaultConfig(1.0)
	cfg.TupleScale = 0
	m := NewMatcher(cfg, spatialindex.BackendLinear, 1)

	src := descriptorSetFrom(
		[][]float64{{1, 0}, {5, 0}},
		[]Vec3{{X: 0}, {X: 10}},
	)
	tgt := descriptorSetFrom(
		[][]float64{{5, 0}, {1, 0}},
		[]Vec3{{X: 10}, {X: 0}},
	)

	corr := m.Match(src, tgt)
	require.Len(t, corr, 2)
	assert.Contains(t, corr, Correspondence{I: 0, J: 1})
	assert.Contains(t, corr, Correspondence{I: 1, J: 0})
}

func TestMatcher_Match_SortedAndCapped(t *testing.T) {
	cfg := DefaultConfig(1.0)
	cfg.TupleScale = 0
	cfg.NumMaxCorr = 1
	m := NewMatcher(cfg, spatialindex.BackendLinear, 1)

	src := descriptorSetFrom(
		[][]float64{{1, 0}, {5, 0}},
		[]Vec3{{X: 0}, {X: 10}},
	)
	tgt := descriptorSetFrom(
		[][]float64{{5, 0}, {1, 0}},
		[]Vec3{{X: 10}, {X: 0}},
	)

	corr := m.Match(src, tgt)
	assert.Len(t, corr, 1)
}

func TestMatcher_Match_LegacyCrossCheckFindsOneDirectional(t *testing.T) {
	cfg := DefaultConfig(1.0)
	cfg.TupleScale = 0
	cfg.UseLegacyMatcher = true
	m := NewMatcher(cfg, spatialindex.BackendLinear, 1)

	src := descriptorSetFrom(
		[][]float64{{1, 0}, {1.1, 0}},
		[]Vec3{{X: 0}, {X: 1}},
	)
	tgt := descriptorSetFrom(
		[][]float64{{1, 0}},
		[]Vec3{{X: 0}},
	)

	corr := m.Match(src, tgt)
	require.Len(t, corr, 2)
	assert.Equal(t, 0, corr[0].J)
	assert.Equal(t, 0, corr[1].J)
}

func TestTupleConsistent_RejectsMismatchedEdgeLengths(t *testing.T) {
	src := descriptorSetFrom(
		[][]float64{{0}, {0}, {0}},
		[]Vec3{{X: 0}, {X: 1}, {X: 2}},
	)
	tgt := descriptorSetFrom(
		[][]float64{{0}, {0}, {0}},
		[]Vec3{{X: 0}, {X: 1}, {X: 100}},
	)
	a, b, c := Correspondence{I: 0, J: 0}, Correspondence{I: 1, J: 1}, Correspondence{I: 2, J: 2}

	assert.False(t, tupleConsistent(src, tgt, a, b, c, 0.9))
}

func TestTupleConsistent_AcceptsRigidTriple(t *testing.T) {
	src := descriptorSetFrom(
		[][]float64{{0}, {0}, {0}},
		[]Vec3{{X: 0}, {X: 1}, {X: 2}},
	)
	tgt := descriptorSetFrom(
		[][]float64{{0}, {0}, {0}},
		[]Vec3{{X: 10}, {X: 11}, {X: 12}},
	)
	a, b, c := Correspondence{I: 0, J: 0}, Correspondence{I: 1, J: 1}, Correspondence{I: 2, J: 2}

	assert.True(t, tupleConsistent(src, tgt, a, b, c, 0.9))
}

func TestMatcher_Match_SwapsRolesWhenTargetLarger(t *testing.T) {
	cfg := DefaultConfig(1.0)
	cfg.TupleScale = 0
	m := NewMatcher(cfg, spatialindex.BackendLinear, 1)

	src := descriptorSetFrom(
		[][]float64{{1, 0}, {5, 0}},
		[]Vec3{{X: 0}, {X: 10}},
	)
	tgt := descriptorSetFrom(
		[][]float64{{5, 0}, {1, 0}, {100, 0}},
		[]Vec3{{X: 10}, {X: 0}, {X: 50}},
	)

	corr := m.Match(src, tgt)
	require.NotEmpty(t, corr)
	for _, c := range corr {
		assert.GreaterOrEqual(t, c.I, 0)
		assert.Less(t, c.I, len(src), "I must index source keypoints after the internal swap")
		assert.GreaterOrEqual(t, c.J, 0)
		assert.Less(t, c.J, len(tgt))
	}
	assert.Contains(t, corr, Correspondence{I: 0, J: 1})
	assert.Contains(t, corr, Correspondence{I: 1, J: 0})
}
