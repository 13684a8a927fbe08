package main

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/pcreg/registration"
)

func TestLoadConfigFromFlags_DefaultsWhenNoConfigFile(t *testing.T) {
	orig := *configFile
	defer func() { *configFile = orig }()
	*configFile = ""

	cfg, err := loadConfigFromFlags()
	require.NoError(t, err)
	assert.Equal(t, *voxelSize, cfg.VoxelSize)
}

func TestApp_RecordSolutionAndSnapshot(t *testing.T) {
	app := NewApp(registration.DefaultConfig(0.1), nil)
	sol := registration.RegistrationSolution{Valid: true, Rotation: registration.Identity3()}

	app.RecordSolution("job-1", sol, 10, 4, 1000)

	jobID, gotSol, corr, pruned := app.snapshot()
	assert.Equal(t, "job-1", jobID)
	assert.True(t, gotSol.Valid)
	assert.Equal(t, 10, corr)
	assert.Equal(t, 4, pruned)
}

func TestHealthEndpoint(t *testing.T) {
	app := NewApp(registration.DefaultConfig(0.1), nil)
	srv := httptest.NewServer(newHTTPServer(app))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestSolutionEndpoint_NotReadyBeforeAnyRun(t *testing.T) {
	app := NewApp(registration.DefaultConfig(0.1), nil)
	srv := httptest.NewServer(newHTTPServer(app))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/solution")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 503, resp.StatusCode)
}

func TestSolutionEndpoint_ReturnsRecordedSolution(t *testing.T) {
	app := NewApp(registration.DefaultConfig(0.1), nil)
	app.RecordSolution("job-1", registration.RegistrationSolution{Valid: true}, 5, 2, 1)
	srv := httptest.NewServer(newHTTPServer(app))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/solution")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}
