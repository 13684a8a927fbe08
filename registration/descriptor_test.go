package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/pcreg/registration/spatialindex"
)

func planeCloud() PointCloud {
	var cloud PointCloud
	for x := -5; x <= 5; x++ {
		for y := -5; y <= 5; y++ {
			cloud = append(cloud, Point{X: float32(x), Y: float32(y), Z: 0})
		}
	}
	return cloud
}

func TestExtractor_Extract_PlaneYieldsUpwardNormals(t *testing.T) {
	cfg := DefaultConfig(1.0)
	cfg.NormalRadius = 1.5
	cfg.FPFHRadius = 2.5
	cfg.MinNeighbors = 4

	ext := NewExtractor(cfg, spatialindex.BackendLinear)
	kps := ext.Extract(planeCloud(), Vec3{X: 0, Y: 0, Z: 10})

	require.NotEmpty(t, kps)
	for _, kp := range kps {
		assert.InDelta(t, 0, kp.Normal.X, 1e-6)
		assert.InDelta(t, 0, kp.Normal.Y, 1e-6)
		assert.Greater(t, kp.Normal.Z, 0.0, "normal should point toward the origin above the plane")
	}
}

func TestExtractor_Extract_DescriptorSumsToHundred(t *testing.T) {
	cfg := DefaultConfig(1.0)
	cfg.NormalRadius = 1.5
	cfg.FPFHRadius = 2.5
	cfg.MinNeighbors = 4

	ext := NewExtractor(cfg, spatialindex.BackendLinear)
	kps := ext.Extract(planeCloud(), Vec3{X: 0, Y: 0, Z: 10})
	require.NotEmpty(t, kps)

	for _, kp := range kps {
		var sum float64
		for _, v := range kp.Descriptor {
			assert.GreaterOrEqual(t, v, 0.0)
			sum += v
		}
		assert.InDelta(t, 100.0, sum, 1e-6)
	}
}

func TestExtractor_Extract_SortedBySourceIdx(t *testing.T) {
	cfg := DefaultConfig(1.0)
	cfg.NormalRadius = 1.5
	cfg.FPFHRadius = 2.5
	cfg.MinNeighbors = 4

	ext := NewExtractor(cfg, spatialindex.BackendLinear)
	kps := ext.Extract(planeCloud(), Vec3{X: 0, Y: 0, Z: 10})
	require.NotEmpty(t, kps)

	for i := 1; i < len(kps); i++ {
		assert.Less(t, kps[i-1].SourceIdx, kps[i].SourceIdx)
	}
}

func TestExtractor_Extract_DropsSparseNeighborhoods(t *testing.T) {
	cfg := DefaultConfig(1.0)
	cfg.NormalRadius = 0.1
	cfg.FPFHRadius = 0.1
	cfg.MinNeighbors = 50

	ext := NewExtractor(cfg, spatialindex.BackendLinear)
	kps := ext.Extract(planeCloud(), Vec3{})
	assert.Empty(t, kps)
}
