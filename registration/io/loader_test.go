package io

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/pcreg/registration"
)

func TestLoadXYZ_ParsesPointsSkippingCommentsAndBlanks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cloud.xyz")
	content := "# header\n1.0 2.0 3.0\n\n4.5 -1.5 0.0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cloud, err := LoadXYZ(path)
	require.NoError(t, err)
	require.Len(t, cloud, 2)
	assert.Equal(t, registration.Point{X: 1.0, Y: 2.0, Z: 3.0}, cloud[0])
	assert.Equal(t, registration.Point{X: 4.5, Y: -1.5, Z: 0.0}, cloud[1])
}

func TestLoadXYZ_RejectsMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.xyz")
	require.NoError(t, os.WriteFile(path, []byte("1.0 2.0\n"), 0644))

	_, err := LoadXYZ(path)
	assert.Error(t, err)
}

func TestSaveXYZ_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.xyz")
	cloud := registration.PointCloud{{X: 1, Y: 2, Z: 3}, {X: -4, Y: 5, Z: -6}}

	require.NoError(t, SaveXYZ(path, cloud))
	loaded, err := LoadXYZ(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.InDelta(t, cloud[0].X, loaded[0].X, 1e-4)
	assert.InDelta(t, cloud[1].Z, loaded[1].Z, 1e-4)
}
