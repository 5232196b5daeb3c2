package obfuscate

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gnolang/gobfus/internal/policy"
	tt "github.com/gnolang/gobfus/internal/types"
	"github.com/gnolang/gobfus/rt/obfstr"
)

const (
	greeterSrc = `package greet

func Greet() string {
	msg := "hello there"
	if len(msg) > 3 {
		return msg
	}
	return msg[:1]
}
`
	constSrc = `package greet

const Name = "constant"
`
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func newPolicy(t *testing.T, mutate func(*policy.Config)) *policy.Policy {
	t.Helper()
	cfg := policy.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := policy.Resolve(cfg)
	require.NoError(t, err)
	return p
}

func testKey(t *testing.T) obfstr.Key {
	t.Helper()
	k, err := obfstr.NewKey()
	require.NoError(t, err)
	return k
}

func statuses(sum *Summary) map[string]string {
	out := make(map[string]string)
	for _, r := range sum.Reports {
		out[r.Rel] = r.Status.String()
	}
	return out
}

var sealedLiteral = regexp.MustCompile(`obfstr\.S\(("[^"]+")\)`)

func TestRunPersist(t *testing.T) {
	t.Parallel()
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "out")
	writeTree(t, in, map[string]string{
		"greet/greet.go": greeterSrc,
		"greet/name.go":  constSrc,
		"README.md":      "docs",
	})
	key := testKey(t)

	sum, err := Run(context.Background(), zap.NewNop(), Options{
		Input:  in,
		Output: out,
		Policy: newPolicy(t, nil),
		Key:    key,
	})
	require.NoError(t, err)

	require.Len(t, sum.Reports, 2)
	assert.Equal(t, "greet/greet.go", sum.Reports[0].Rel)
	assert.Equal(t, "greet/name.go", sum.Reports[1].Rel)
	assert.Equal(t, map[string]string{
		"greet/greet.go": "CHANGED",
		"greet/name.go":  "UNCHANGED",
	}, statuses(sum))
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 1, sum.Count(tt.StatusChanged))

	written, err := os.ReadFile(filepath.Join(out, "greet", "greet.go"))
	require.NoError(t, err)
	assert.Contains(t, string(written), "obfflow.Mark()")
	assert.NotContains(t, string(written), "hello there")

	m := sealedLiteral.FindStringSubmatch(string(written))
	require.NotNil(t, m, "no protected literal in:\n%s", written)
	sealed, err := strconv.Unquote(m[1])
	require.NoError(t, err)
	plain, err := obfstr.Open(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, "hello there", plain)

	unchanged, err := os.ReadFile(filepath.Join(out, "greet", "name.go"))
	require.NoError(t, err)
	assert.Equal(t, constSrc, string(unchanged))

	_, err = os.Stat(filepath.Join(out, "README.md"))
	assert.True(t, os.IsNotExist(err), "non-source files are only copied in project mode")
}

func TestRunDryRunWritesNothing(t *testing.T) {
	t.Parallel()
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "out")
	records := filepath.Join(t.TempDir(), "records")
	writeTree(t, in, map[string]string{"main.go": greeterSrc, "go.mod": "module example.com/greet\n"})

	sum, err := Run(context.Background(), nil, Options{
		Input:        in,
		Output:       out,
		Records:      records,
		Policy:       newPolicy(t, nil),
		Key:          testKey(t),
		WriteLdflags: true,
		Project:      true,
		DryRun:       true,
		Diff:         true,
		DiffContext:  1,
	})
	require.NoError(t, err)

	require.Len(t, sum.Reports, 1)
	rep := sum.Reports[0]
	assert.Equal(t, tt.StatusChanged, rep.Status)
	assert.Empty(t, rep.OutputPath)
	assert.Contains(t, rep.Diff, "--- a/main.go")
	assert.Contains(t, rep.Diff, `-	msg := "hello there"`)

	for _, dir := range []string{out, records} {
		_, err = os.Stat(dir)
		assert.True(t, os.IsNotExist(err), "%s must not exist after a dry run", dir)
	}
}

func TestRunSkipRules(t *testing.T) {
	t.Parallel()
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "out")
	writeTree(t, in, map[string]string{
		"a.go":          greeterSrc,
		"zz_gen.go":     "package greet\n\nvar generated = \"generated text\"\n",
		"a_test.go":     "package greet\n\nvar fixture = \"fixture text\"\n",
		"vendor/v/v.go": "package v\n\nvar s = \"vendored text\"\n",
	})
	p := newPolicy(t, func(cfg *policy.Config) {
		cfg.Obfuscation.SkipFiles = []string{"_gen.go"}
		cfg.Include.Exclude = []string{"**/*_test.go"}
	})

	sum, err := Run(context.Background(), nil, Options{Input: in, Output: out, Policy: p, Key: testKey(t)})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"a.go":      "CHANGED",
		"a_test.go": "SKIP",
		"zz_gen.go": "SKIP",
	}, statuses(sum))

	for _, rel := range []string{"zz_gen.go", "a_test.go", "vendor/v/v.go"} {
		_, err := os.Stat(filepath.Join(out, filepath.FromSlash(rel)))
		assert.True(t, os.IsNotExist(err), "%s must not be written outside project mode", rel)
	}
}

func TestRunProjectMode(t *testing.T) {
	t.Parallel()
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "out")
	gen := "package greet\n\nvar generated = \"generated text\"\n"
	writeTree(t, in, map[string]string{
		"go.mod":        "module example.com/greet\n\ngo 1.22\n",
		"greet.go":      greeterSrc,
		"zz_gen.go":     gen,
		"README.md":     "docs",
		"vendor/v/v.go": "package v\n",
	})
	p := newPolicy(t, func(cfg *policy.Config) { cfg.Obfuscation.SkipFiles = []string{"_gen.go"} })
	key := testKey(t)

	sum, err := Run(context.Background(), nil, Options{
		Input:        in,
		Output:       out,
		Policy:       p,
		Key:          key,
		Project:      true,
		WriteLdflags: true,
	})
	require.NoError(t, err)

	copied, err := os.ReadFile(filepath.Join(out, "zz_gen.go"))
	require.NoError(t, err)
	assert.Equal(t, gen, string(copied))

	for _, rel := range []string{"README.md", "vendor/v/v.go"} {
		_, err := os.Stat(filepath.Join(out, filepath.FromSlash(rel)))
		assert.NoError(t, err, rel)
	}

	require.Equal(t, []string{filepath.Join(out, "go.mod")}, sum.Manifests)
	mod, err := os.ReadFile(filepath.Join(out, "go.mod"))
	require.NoError(t, err)
	assert.Contains(t, string(mod), "github.com/gnolang/gobfus")
	assert.Contains(t, string(mod), "golang.org/x/crypto")

	orig, err := os.ReadFile(filepath.Join(in, "go.mod"))
	require.NoError(t, err)
	assert.NotContains(t, string(orig), "gobfus", "the input manifest is never patched")

	require.Equal(t, filepath.Join(out, LdflagsFile), sum.Ldflags)
	flags, err := os.ReadFile(sum.Ldflags)
	require.NoError(t, err)
	assert.Equal(t, Ldflags(key)+"\n", string(flags))
}

func TestRunRecords(t *testing.T) {
	t.Parallel()
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "out")
	records := filepath.Join(t.TempDir(), "records")
	writeTree(t, in, map[string]string{"pkg/a.go": greeterSrc})

	sum, err := Run(context.Background(), nil, Options{
		Input:   in,
		Output:  out,
		Records: records,
		Policy:  newPolicy(t, nil),
		Key:     testKey(t),
	})
	require.NoError(t, err)

	data, err := os.ReadFile(RecordPath(records, "pkg/a.go"))
	require.NoError(t, err)

	var rec tt.Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, sum.RunID, rec.RunID)
	assert.Equal(t, "pkg/a.go", rec.Path)
	assert.True(t, rec.Changed)
	assert.Equal(t, 1, rec.Passes[tt.PassLiterals])

	written, err := os.ReadFile(filepath.Join(out, "pkg", "a.go"))
	require.NoError(t, err)
	assert.Equal(t, string(written), rec.Output)
}

func TestRunSingleFile(t *testing.T) {
	t.Parallel()
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "out")
	writeTree(t, in, map[string]string{
		"MAIN.GO":  greeterSrc,
		"other.go": "package greet\n\nfunc helper() {}\n",
	})

	sum, err := Run(context.Background(), nil, Options{
		Input:  filepath.Join(in, "MAIN.GO"),
		Output: out,
		Policy: newPolicy(t, nil),
		Key:    testKey(t),
	})
	require.NoError(t, err)
	require.Len(t, sum.Reports, 1)
	assert.Equal(t, "MAIN.GO", sum.Reports[0].Rel)

	_, err = os.Stat(filepath.Join(out, "MAIN.GO"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(out, "other.go"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunRenamesAcrossPackage(t *testing.T) {
	t.Parallel()
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "out")
	writeTree(t, in, map[string]string{
		"a.go": "package greet\n\nfunc helper(n int) int { return n + 1 }\n",
		"b.go": "package greet\n\nfunc Use() int { return helper(2) }\n",
	})
	p := newPolicy(t, func(cfg *policy.Config) {
		cfg.Obfuscation.Strings = false
		cfg.Obfuscation.ControlFlow = false
		cfg.Identifiers.Rename = true
	})

	_, err := Run(context.Background(), nil, Options{Input: in, Output: out, Policy: p, Seed: 42, Jobs: 2})
	require.NoError(t, err)

	name := regexp.MustCompile(`helper\d{4}`)
	a, err := os.ReadFile(filepath.Join(out, "a.go"))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(out, "b.go"))
	require.NoError(t, err)

	def := name.FindString(string(a))
	require.NotEmpty(t, def, string(a))
	assert.Equal(t, def, name.FindString(string(b)))
}

func TestRunKeepsFunctionsWhenPackageIsPartial(t *testing.T) {
	t.Parallel()
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "out")
	writeTree(t, in, map[string]string{
		"a.go":      "package greet\n\nfunc helper() int { return 1 }\n",
		"zz_gen.go": "package greet\n\nfunc Use() int { return helper() }\n",
	})
	p := newPolicy(t, func(cfg *policy.Config) {
		cfg.Obfuscation.Strings = false
		cfg.Obfuscation.ControlFlow = false
		cfg.Identifiers.Rename = true
		cfg.Obfuscation.SkipFiles = []string{"_gen.go"}
	})

	sum, err := Run(context.Background(), nil, Options{Input: in, Output: out, Policy: p})
	require.NoError(t, err)
	assert.Equal(t, "UNCHANGED", statuses(sum)["a.go"])
}

func TestRunErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"notes.txt":  "text",
		"bad/a.go":   greeterSrc,
		"bad/b.go":   "package greet\n\nfunc broken( {\n",
		"good/ok.go": greeterSrc,
	})
	p := newPolicy(t, nil)

	t.Run("missing input", func(t *testing.T) {
		t.Parallel()
		_, err := Run(context.Background(), nil, Options{Input: filepath.Join(dir, "nope"), DryRun: true, Policy: p})
		assert.ErrorIs(t, err, tt.ErrInputNotFound)
	})

	t.Run("not a go file", func(t *testing.T) {
		t.Parallel()
		_, err := Run(context.Background(), nil, Options{Input: filepath.Join(dir, "notes.txt"), DryRun: true, Policy: p})
		assert.ErrorIs(t, err, tt.ErrInputNotFound)
	})

	t.Run("output required", func(t *testing.T) {
		t.Parallel()
		_, err := Run(context.Background(), nil, Options{Input: filepath.Join(dir, "good"), Policy: p})
		var cerr *tt.ConfigError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "output", cerr.Field)
	})

	t.Run("parse error aborts the run", func(t *testing.T) {
		t.Parallel()
		out := filepath.Join(t.TempDir(), "out")
		sum, err := Run(context.Background(), nil, Options{
			Input:  filepath.Join(dir, "bad"),
			Output: out,
			Policy: p,
			Key:    testKey(t),
			Jobs:   4,
		})
		assert.Nil(t, sum)
		var perr *tt.ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, filepath.Join(dir, "bad", "b.go"), perr.Path)
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Run(ctx, nil, Options{Input: filepath.Join(dir, "good"), DryRun: true, Policy: p, Key: testKey(t)})
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestRunFormatterFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "out")
	writeTree(t, in, map[string]string{"a.go": greeterSrc})

	sum, err := Run(context.Background(), nil, Options{
		Input:     in,
		Output:    out,
		Policy:    newPolicy(t, nil),
		Key:       testKey(t),
		Format:    true,
		Formatter: []string{filepath.Join(in, "no-such-formatter")},
	})
	require.NoError(t, err)
	assert.Equal(t, tt.StatusChanged, sum.Reports[0].Status)

	_, err = os.Stat(filepath.Join(out, "a.go"))
	assert.NoError(t, err)
}

func TestFormatFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package a\n"), 0o644))

	err := formatFile(context.Background(), []string{filepath.Join(t.TempDir(), "missing-tool"), "-w"}, path)
	var terr *tt.ExternalToolError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, path, terr.Path)
}
