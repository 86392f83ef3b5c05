package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleRoot_HoldsGoMod(t *testing.T) {
	root, err := ModuleRoot()
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(root, "go.mod"))
	assert.FileExists(t, filepath.Join(root, "testutil", "testenv.go"))
}
