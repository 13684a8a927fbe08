package registration

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cubeCorners() []Vec3 {
	var pts []Vec3
	for _, x := range []float64{0, 1} {
		for _, y := range []float64{0, 1} {
			for _, z := range []float64{0, 1} {
				pts = append(pts, Vec3{X: x, Y: y, Z: z})
			}
		}
	}
	return pts
}

func descSetFromPositions(positions []Vec3) DescriptorSet {
	out := make(DescriptorSet, len(positions))
	for i, p := range positions {
		out[i] = Keypoint{SourceIdx: i, Position: p}
	}
	return out
}

func rotateYaw(p Vec3, yaw float64) Vec3 {
	c, s := math.Cos(yaw), math.Sin(yaw)
	return Vec3{X: c*p.X - s*p.Y, Y: s*p.X + c*p.Y, Z: p.Z}
}

func addVec(a, b Vec3) Vec3 {
	return Vec3{X: a.X + b.X, Y: a.Y + b.Y, Z: a.Z + b.Z}
}

func TestSolver_Estimate_RecoversPureTranslation(t *testing.T) {
	cfg := DefaultConfig(0.1)
	cfg.SolverNoiseBound = 0.05
	cfg.GNCMaxIterations = 50

	src := descSetFromPositions(cubeCorners())
	translation := Vec3{X: 5, Y: -3, Z: 2}
	var tgtPts []Vec3
	for _, p := range cubeCorners() {
		tgtPts = append(tgtPts, addVec(p, translation))
	}
	tgt := descSetFromPositions(tgtPts)

	corr := make(CorrespondenceSet, len(src))
	for i := range src {
		corr[i] = Correspondence{I: i, J: i}
	}

	sol := NewSolver(cfg, 1).Estimate(src, tgt, corr)
	require.True(t, sol.Valid)
	assert.InDelta(t, translation.X, sol.Translation.X, 1e-3)
	assert.InDelta(t, translation.Y, sol.Translation.Y, 1e-3)
	assert.InDelta(t, translation.Z, sol.Translation.Z, 1e-3)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(t, want, sol.Rotation[i][j], 1e-2)
		}
	}
}

func TestSolver_Estimate_RecoversYawAndTranslation(t *testing.T) {
	cfg := DefaultConfig(0.1)
	cfg.SolverNoiseBound = 0.05
	cfg.GNCMaxIterations = 50
	cfg.UseQuatro = true

	yaw := math.Pi / 6
	translation := Vec3{X: 2, Y: 1, Z: 0}

	src := descSetFromPositions(cubeCorners())
	var tgtPts []Vec3
	for _, p := range cubeCorners() {
		tgtPts = append(tgtPts, addVec(rotateYaw(p, yaw), translation))
	}
	tgt := descSetFromPositions(tgtPts)

	corr := make(CorrespondenceSet, len(src))
	for i := range src {
		corr[i] = Correspondence{I: i, J: i}
	}

	sol := NewSolver(cfg, 1).Estimate(src, tgt, corr)
	require.True(t, sol.Valid)
	assert.InDelta(t, translation.X, sol.Translation.X, 0.05)
	assert.InDelta(t, translation.Y, sol.Translation.Y, 0.05)
	assert.InDelta(t, yawOf(sol.Rotation), yaw, 0.05)
}

func TestSolver_Estimate_TooFewCorrespondencesIsInvalid(t *testing.T) {
	cfg := DefaultConfig(0.1)
	src := descSetFromPositions(cubeCorners())
	tgt := descSetFromPositions(cubeCorners())
	corr := CorrespondenceSet{{I: 0, J: 0}, {I: 1, J: 1}}

	sol := NewSolver(cfg, 1).Estimate(src, tgt, corr)
	assert.False(t, sol.Valid)
}

func TestAdaptiveVote_FindsDenseCluster(t *testing.T) {
	values := []float64{0.0, 0.01, -0.01, 50.0}
	val, idx := adaptiveVote(values, 0.1)
	assert.InDelta(t, 0.0, val, 1e-6)
	assert.Len(t, idx, 3)
}

func TestTLSWeight_FullWeightWithinBound(t *testing.T) {
	w := tlsWeight(0, 1.0, 1.0)
	assert.Equal(t, 1.0, w)
}

func TestTLSWeight_SmallWeightFarOutsideBound(t *testing.T) {
	w := tlsWeight(1000, 1.0, 1.0)
	assert.InDelta(t, 0.0, w, 1e-3)
	assert.Less(t, w, 0.01)
}

func TestSolver_Estimate_SubsamplesLargeCorrespondenceSets(t *testing.T) {
	cfg := DefaultConfig(0.1)
	cfg.SolverNoiseBound = 0.05
	cfg.GNCMaxIterations = 50

	// 200 correspondences produce 19900 candidate pairs, well over the
	// TIM subsampling cap, so this exercises the random-subsample path.
	var srcPts []Vec3
	for i := 0; i < 200; i++ {
		srcPts = append(srcPts, Vec3{
			X: float64(i % 10),
			Y: float64((i / 10) % 10),
			Z: float64(i / 100),
		})
	}
	translation := Vec3{X: 1.5, Y: -0.5, Z: 0.25}
	var tgtPts []Vec3
	for _, p := range srcPts {
		tgtPts = append(tgtPts, addVec(p, translation))
	}
	src := descSetFromPositions(srcPts)
	tgt := descSetFromPositions(tgtPts)

	corr := make(CorrespondenceSet, len(src))
	for i := range src {
		corr[i] = Correspondence{I: i, J: i}
	}

	sol := NewSolver(cfg, 7).Estimate(src, tgt, corr)
	require.True(t, sol.Valid)
	assert.InDelta(t, translation.X, sol.Translation.X, 1e-3)
	assert.InDelta(t, translation.Y, sol.Translation.Y, 1e-3)
	assert.InDelta(t, translation.Z, sol.Translation.Z, 1e-3)

	// Same seed, same inputs: bit-identical output.
	again := NewSolver(cfg, 7).Estimate(src, tgt, corr)
	assert.Equal(t, sol.Rotation, again.Rotation)
	assert.Equal(t, sol.Translation, again.Translation)
}
