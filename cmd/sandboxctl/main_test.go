package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestExpandGlobs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.js"), []byte("console.log(1)"))
	writeFile(t, filepath.Join(dir, "nested", "b.js"), []byte("console.log(2)"))
	writeFile(t, filepath.Join(dir, "nested", "c.txt"), []byte("x"))

	files, err := expand([]string{filepath.Join(dir, "**", "*.js"), filepath.Join(dir, "a.js")})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.js"),
		filepath.Join(dir, "nested", "b.js"),
	}, files)
}

func TestExpandKeepsLiteral(t *testing.T) {
	files, err := expand([]string{"missing.js"})
	require.NoError(t, err)
	assert.Equal(t, []string{"missing.js"}, files)
}

func TestReadScript(t *testing.T) {
	dir := t.TempDir()

	script := filepath.Join(dir, "ok.js")
	writeFile(t, script, []byte("const x = 1;\nconsole.log(x);\n"))
	code, err := readScript(script)
	require.NoError(t, err)
	assert.Contains(t, code, "console.log")

	png := filepath.Join(dir, "img.js")
	writeFile(t, png, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	_, err = readScript(png)
	assert.ErrorContains(t, err, "not a script")

	blank := filepath.Join(dir, "blank.js")
	writeFile(t, blank, []byte("   \n"))
	code, err = readScript(blank)
	require.NoError(t, err)
	assert.Equal(t, "   \n", code)

	_, err = readScript(filepath.Join(dir, "nope.js"))
	assert.Error(t, err)
}
