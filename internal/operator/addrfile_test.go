package operator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileAddrLoadMissingReturnsEmpty(t *testing.T) {
	f := FileAddr{Path: filepath.Join(t.TempDir(), "robot_addr")}
	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestFileAddrSaveThenLoad(t *testing.T) {
	f := FileAddr{Path: filepath.Join(t.TempDir(), "robot_addr")}
	require.NoError(t, f.Save("192.168.1.50:5005"))

	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.50:5005", got)
}
