package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigurationError_Error(t *testing.T) {
	err := configErr("VoxelSize", -1.0, "must be positive")
	assert.Contains(t, err.Error(), "VoxelSize")
	assert.Contains(t, err.Error(), "must be positive")
}
