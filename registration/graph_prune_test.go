package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrune_RobinNone_PassesThrough(t *testing.T) {
	cfg := DefaultConfig(1.0)
	cfg.RobinMode = RobinNone
	corr := CorrespondenceSet{{I: 0, J: 0}, {I: 1, J: 1}}

	out := Prune(cfg, nil, nil, corr)
	assert.Equal(t, corr, out)
}

func TestPrune_MaxKCore_DropsInconsistentOutlier(t *testing.T) {
	cfg := DefaultConfig(1.0)
	cfg.RobinMode = RobinMaxKCore
	cfg.RobinNoiseBound = 0.1

	src := descriptorSetFrom(
		[][]float64{{0}, {0}, {0}, {0}},
		[]Vec3{{X: 0}, {X: 1}, {X: 2}, {X: 3}},
	)
	// Correspondences 0,1,2 are a consistent rigid shift by +10; 3 is an
	// outlier whose target position is inconsistent with the others.
	tgt := descriptorSetFrom(
		[][]float64{{0}, {0}, {0}, {0}},
		[]Vec3{{X: 10}, {X: 11}, {X: 12}, {X: 500}},
	)
	corr := CorrespondenceSet{{I: 0, J: 0}, {I: 1, J: 1}, {I: 2, J: 2}, {I: 3, J: 3}}

	out := Prune(cfg, src, tgt, corr)
	require.NotEmpty(t, out)
	assert.NotContains(t, out, Correspondence{I: 3, J: 3})
	assert.Contains(t, out, Correspondence{I: 0, J: 0})
	assert.Contains(t, out, Correspondence{I: 1, J: 1})
	assert.Contains(t, out, Correspondence{I: 2, J: 2})
}

func TestPrune_MaxClique_FindsConsistentSubset(t *testing.T) {
	cfg := DefaultConfig(1.0)
	cfg.RobinMode = RobinMaxClique
	cfg.RobinNoiseBound = 0.1
	cfg.MaxCliqueVertices = 1000

	src := descriptorSetFrom(
		[][]float64{{0}, {0}, {0}, {0}},
		[]Vec3{{X: 0}, {X: 1}, {X: 2}, {X: 3}},
	)
	tgt := descriptorSetFrom(
		[][]float64{{0}, {0}, {0}, {0}},
		[]Vec3{{X: 10}, {X: 11}, {X: 12}, {X: 500}},
	)
	corr := CorrespondenceSet{{I: 0, J: 0}, {I: 1, J: 1}, {I: 2, J: 2}, {I: 3, J: 3}}

	out := Prune(cfg, src, tgt, corr)
	assert.Len(t, out, 3)
	assert.NotContains(t, out, Correspondence{I: 3, J: 3})
}

func TestMaxKCore_AllCompatibleKeepsEverything(t *testing.T) {
	cfg := DefaultConfig(1.0)
	cfg.RobinMode = RobinMaxKCore
	cfg.RobinNoiseBound = 1000

	src := descriptorSetFrom(
		[][]float64{{0}, {0}, {0}},
		[]Vec3{{X: 0}, {X: 1}, {X: 2}},
	)
	tgt := descriptorSetFrom(
		[][]float64{{0}, {0}, {0}},
		[]Vec3{{X: 10}, {X: 11}, {X: 12}},
	)
	corr := CorrespondenceSet{{I: 0, J: 0}, {I: 1, J: 1}, {I: 2, J: 2}}

	out := Prune(cfg, src, tgt, corr)
	assert.Len(t, out, 3)
}
