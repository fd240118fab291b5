package loader

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProgram(t *testing.T, manifest string, files map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "graph.json"), []byte(manifest), 0o644))
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".k"), data, 0o644))
	}
	return dir
}

func TestFirstManifestKeyBecomesEntryNode(t *testing.T) {
	dir := writeProgram(t, `{"Helper": [], "Main": ["Helper"]}`, map[string][]byte{
		"Helper": {0x90},
		"Main":   {0x90},
	})

	vmInst, err := New(dir, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "Helper", vmInst.Graph.Entry().Name)
	assert.Equal(t, []int{0}, vmInst.Graph.Neighbors(1))
}

func TestExecuteRunsEntryNode(t *testing.T) {
	dir := writeProgram(t, `{"Main": []}`, map[string][]byte{
		"Main": {0x10, 0x00, 0x00, 0x00, 0x2A, 0x90},
	})

	var out bytes.Buffer
	vmInst, err := New(dir, &out)
	require.NoError(t, err)
	require.NoError(t, vmInst.Execute())
	assert.Equal(t, "42", out.String())
}

func TestMissingManifestIsReported(t *testing.T) {
	dir := t.TempDir()
	_, err := New(dir, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrManifestMissing)
}

func TestMalformedManifestIsReported(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "graph.json"), []byte("not json"), 0o644))
	_, err := New(dir, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrManifestMalformed)
}

func TestMissingBytecodeFileIsReported(t *testing.T) {
	dir := writeProgram(t, `{"Main": []}`, nil)
	_, err := New(dir, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrBytecodeMissing)
}

func TestUnknownNeighborIsReported(t *testing.T) {
	dir := writeProgram(t, `{"Main": ["Ghost"]}`, map[string][]byte{"Main": {0x90}})
	_, err := New(dir, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrUnknownNeighbor)
}
