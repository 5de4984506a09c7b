package learning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Value int `json:"value"`
}

func TestSaveJSONNeverLeavesTmpBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "sample.json")

	require.NoError(t, saveJSON(path, sample{Value: 7}))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "I3: no third state: tmp file must not survive a successful write")

	var out sample
	present, err := loadJSON(path, &out)
	require.NoError(t, err)
	require.True(t, present)
	assert.Equal(t, 7, out.Value)
}

func TestLoadJSONAbsentFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	var out sample
	present, err := loadJSON(filepath.Join(dir, "missing.json"), &out)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestLoadJSONCorruptFileDegradesToAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0o644))

	var out sample
	present, err := loadJSON(path, &out)
	require.NoError(t, err)
	assert.False(t, present)
}
