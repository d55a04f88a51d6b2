package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"

	terrain "github.com/twpayne/go-terrain"
)

func newTileDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	data := make([]int16, 11*11)
	for i := range data {
		data[i] = 100 + int16(i)
	}
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "N35E138.hgt"), terrain.EncodeHGT(data), 0o666))
	return dir
}

func runTerrain(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(t.Context(), append([]string{"terrain", "--logLevel", "error"}, args...), &stdout, &stderr)
	return stdout.String(), err
}

func TestTiles(t *testing.T) {
	stdout, err := runTerrain(t, "tiles", "--bbox", "138.3,35.2,139.9,35.8")
	assert.NoError(t, err)
	assert.Equal(t, "N35E138\nN35E139\n", stdout)

	_, err = runTerrain(t, "tiles", "--bbox", "138,60,139,61")
	assert.IsError(t, err, terrain.ErrCoverage)
}

func TestElevation(t *testing.T) {
	tileDir := newTileDir(t)
	stdout, err := runTerrain(t, "--tileDir", tileDir, "elevation", "35", "138")
	assert.NoError(t, err)
	assert.Equal(t, "210\n", stdout)

	_, err = runTerrain(t, "--tileDir", tileDir, "elevation", "35")
	assert.Error(t, err)
}

func TestFetchAndExpression(t *testing.T) {
	tileDir := newTileDir(t)
	outDir := filepath.Join(t.TempDir(), "out")

	_, err := runTerrain(t, "--tileDir", tileDir, "fetch", "--bbox", "138,35,139,36", "--out", outDir)
	assert.NoError(t, err)
	for _, name := range []string{"elevation.bin", "elevation.json"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err)
	}

	stdout, err := runTerrain(t, "expression", "--in", outDir, "--ramp", "grayscale")
	assert.NoError(t, err)
	assert.Contains(t, stdout, `"interpolate"`)
	assert.Contains(t, stdout, `"nodata": -32768`)

	stdout, err = runTerrain(t, "expression", "--in", outDir, "--expression", "elevation / 10", "--min", "0", "--max", "50")
	assert.NoError(t, err)
	assert.Contains(t, stdout, `"/"`)

	_, err = runTerrain(t, "expression", "--in", outDir, "--expression", "b2")
	assert.Error(t, err)

	_, err = runTerrain(t, "expression", "--in", outDir, "--min", "low")
	assert.Error(t, err)
}

func TestFetchNoData(t *testing.T) {
	tileDir := newTileDir(t)
	_, err := runTerrain(t, "--tileDir", tileDir, "fetch", "--bbox", "0,0,1,1", "--out", t.TempDir())
	assert.IsError(t, err, terrain.ErrNoDataAvailable)
}

func TestImportMissingFile(t *testing.T) {
	_, err := runTerrain(t, "import", "--geotiff", filepath.Join(t.TempDir(), "missing.tif"), "--out", t.TempDir())
	assert.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	_, err := runTerrain(t, "--concurrency", "0", "tiles", "--bbox", "0,0,1,1")
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Concurrency"))
}
