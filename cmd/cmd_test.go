package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tt "github.com/gnolang/gobfus/internal/types"
	"github.com/gnolang/gobfus/rt/obfstr"
)

const mainSrc = `package main

func main() {
	println("hello, world")
}
`

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(defaultToRun(root, args))
	err := root.Execute()
	return out.String(), err
}

func writeMain(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte(mainSrc), 0o644))
	return dir
}

func TestRunDryRun(t *testing.T) {
	t.Parallel()
	dir := writeMain(t)

	out, err := execute(t, "run", dir, "--dry-run", "--diff", "-v", "--dev-key", "--control-flow=false")
	require.NoError(t, err)

	assert.Contains(t, out, "CHANGED main.go (literals=1)")
	assert.Contains(t, out, "--- a/main.go")
	assert.Contains(t, out, `-	println("hello, world")`)
	assert.Contains(t, out, "1 changed, 0 skipped, 0 unchanged")
	assert.NotContains(t, out, "build with")
}

func TestRunIsDefault(t *testing.T) {
	t.Parallel()
	dir := writeMain(t)

	out, err := execute(t, dir, "--dry-run", "-v", "--dev-key", "--control-flow=false")
	require.NoError(t, err)
	assert.Contains(t, out, "CHANGED main.go (literals=1)")
	assert.Contains(t, out, "1 changed, 0 skipped, 0 unchanged")
}

func TestDefaultToRun(t *testing.T) {
	t.Parallel()
	root := NewRootCmd()
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"no args", nil, nil},
		{"path", []string{"./pkg"}, []string{"run", "./pkg"}},
		{"flags before path", []string{"-o", "out", "./pkg"}, []string{"run", "-o", "out", "./pkg"}},
		{"subcommand", []string{"keygen"}, []string{"keygen"}},
		{"explicit run", []string{"run", "./pkg"}, []string{"run", "./pkg"}},
		{"version", []string{"--version"}, []string{"--version"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, defaultToRun(root, tc.args))
		})
	}
}

func TestRunThenReveal(t *testing.T) {
	t.Parallel()
	dir := writeMain(t)
	outDir := filepath.Join(t.TempDir(), "obf")
	key, err := obfstr.NewKey()
	require.NoError(t, err)

	_, err = execute(t, "run", dir, "-o", outDir, "--key-hex", key.String(), "--seed", "7")
	require.NoError(t, err)

	written, err := os.ReadFile(filepath.Join(outDir, "main.go"))
	require.NoError(t, err)
	m := regexp.MustCompile(`obfstr\.S\(("[^"]+")\)`).FindStringSubmatch(string(written))
	require.NotNil(t, m, string(written))
	token, err := strconv.Unquote(m[1])
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(outDir, "gobfus.ldflags"))
	assert.True(t, os.IsNotExist(err), "no linker flags file for a supplied key")

	out, err := execute(t, "reveal", "--key-hex", key.String(), token)
	require.NoError(t, err)
	assert.Equal(t, strconv.Quote("hello, world")+"\n", out)

	other, err := obfstr.NewKey()
	require.NoError(t, err)
	_, err = execute(t, "reveal", "--key-hex", other.String(), token)
	assert.ErrorIs(t, err, obfstr.ErrProtection)
}

func TestRunGeneratesKey(t *testing.T) {
	t.Parallel()
	dir := writeMain(t)
	outDir := filepath.Join(t.TempDir(), "obf")

	out, err := execute(t, "run", dir, "-o", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "build with")

	flags, err := os.ReadFile(filepath.Join(outDir, "gobfus.ldflags"))
	require.NoError(t, err)
	assert.Regexp(t, `^-X github.com/gnolang/gobfus/rt/obfstr.keyHex=[0-9a-f]{64}\n$`, string(flags))
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	t.Run("config", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, "run", writeMain(t), "--dry-run", "--dev-key", "--min-string-length=-1")
		var cerr *tt.ConfigError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "obfuscation.min_string_length", cerr.Field)
	})

	t.Run("parse", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.go"), []byte("package main\n\nfunc main() {\n"), 0o644))

		_, err := execute(t, "run", dir, "--dry-run", "--dev-key")
		var perr *tt.ParseError
		require.ErrorAs(t, err, &perr)

		rendered := renderError(err)
		assert.True(t, strings.HasPrefix(rendered, "error: parse failed\n"), rendered)
		assert.Contains(t, rendered, "bad.go:")
	})

	t.Run("missing input", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, "run", filepath.Join(t.TempDir(), "nope"), "--dry-run", "--dev-key")
		assert.True(t, errors.Is(err, tt.ErrInputNotFound))
	})

	t.Run("reveal without key", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, "reveal", "abc")
		assert.Error(t, err)
	})
}

func TestInit(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "gobfus.yaml")

	out, err := execute(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "obfuscation:")
}

func TestKeygen(t *testing.T) {
	t.Parallel()
	out, err := execute(t, "keygen", "--ldflags")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	_, err = obfstr.ParseKey(lines[0])
	require.NoError(t, err)
	assert.Equal(t, "-X github.com/gnolang/gobfus/rt/obfstr.keyHex="+lines[0], lines[1])

	keyFile := filepath.Join(t.TempDir(), "key")
	_, err = execute(t, "keygen", "--out", keyFile)
	require.NoError(t, err)
	data, err := os.ReadFile(keyFile)
	require.NoError(t, err)
	_, err = obfstr.ParseKey(strings.TrimSpace(string(data)))
	assert.NoError(t, err)
}
