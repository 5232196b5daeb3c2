// Package engine rewrites a single Go source file: it protects literals,
// marks control-flow blocks and renames identifiers as the policy asks.
package engine

import (
	"bytes"
	"errors"
	"go/format"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"sync"

	"github.com/gnolang/gobfus/internal/policy"
	tt "github.com/gnolang/gobfus/internal/types"
	"github.com/gnolang/gobfus/rt/obfstr"
	"github.com/gnolang/gobfus/version"
)

// Import paths of the companion packages referenced by rewritten code.
const (
	StrImportPath  = version.Module + "/rt/obfstr"
	FlowImportPath = version.Module + "/rt/obfflow"
)

// Sealer produces the opaque token a protected literal is replaced with.
type Sealer interface {
	Seal(value string) (string, error)
}

// KeySealer seals values with obfstr under a fixed key.
type KeySealer struct {
	Key obfstr.Key
}

func (s KeySealer) Seal(value string) (string, error) {
	return obfstr.Seal(s.Key, value)
}

type Options struct {
	// Seed drives identifier suffixes. Every file of a package must be
	// transformed with the same seed for renamed functions to agree.
	Seed uint64
	// Importer resolves imports during type checking. It defaults to a
	// source importer shared by all calls.
	Importer types.Importer
}

// Engine is safe for concurrent use; every Transform call works on its own
// parse of the input.
type Engine struct {
	policy   *policy.Policy
	sealer   Sealer
	seed     uint64
	importer types.Importer
	// importer implementations cache packages and are not safe for
	// concurrent use
	mu sync.Mutex
}

// New creates an engine for p. A sealer is required when literal
// protection is enabled.
func New(p *policy.Policy, sealer Sealer, opts Options) (*Engine, error) {
	if p == nil {
		return nil, errors.New("engine: nil policy")
	}
	if p.Enabled(tt.PassLiterals) && sealer == nil {
		return nil, errors.New("engine: literal protection requires a sealer")
	}
	imp := opts.Importer
	if imp == nil {
		imp = importer.ForCompiler(token.NewFileSet(), "source", nil)
	}
	return &Engine{
		policy:   p,
		sealer:   sealer,
		seed:     opts.Seed,
		importer: imp,
	}, nil
}

// Unit is one file to transform together with its package context.
type Unit struct {
	Filename string
	Src      []byte
	// Siblings holds the other files of the same directory, keyed by
	// filename. Files of a different package are ignored.
	Siblings map[string][]byte
	// PkgDir identifies the package; it keys function suffixes.
	PkgDir string
	// KeepFuncs disables function renaming. Callers set it when some file
	// of the package is not transformed.
	KeepFuncs bool
}

func (e *Engine) passes() []pass {
	var ps []pass
	for _, name := range tt.Passes {
		if !e.policy.Enabled(name) {
			continue
		}
		switch name {
		case tt.PassRename:
			ps = append(ps, renamePass{})
		case tt.PassLiterals:
			ps = append(ps, literalPass{})
		case tt.PassFlow:
			ps = append(ps, flowPass{})
		}
	}
	return ps
}

// Transform rewrites u.Src. The input bytes are never modified; when no
// pass rewrites anything the returned output is u.Src itself.
func (e *Engine) Transform(u Unit) (*tt.Result, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, u.Filename, u.Src, parser.ParseComments)
	if err != nil {
		return nil, &tt.ParseError{Path: u.Filename, Err: err}
	}

	res := &tt.Result{
		Filename: u.Filename,
		Original: u.Src,
		Output:   u.Src,
		Passes:   make(map[tt.Pass]int),
	}

	passes := e.passes()
	if len(passes) == 0 {
		return res, nil
	}

	st := newState(e, fset, file, u)
	e.check(st)
	if err := st.prepare(); err != nil {
		return nil, err
	}

	for _, p := range passes {
		if err := st.run(p); err != nil {
			return nil, err
		}
	}

	total := 0
	for name, n := range st.counts {
		res.Passes[name] = n
		total += n
	}
	if total == 0 {
		return res, nil
	}

	st.ensureImports()

	out, err := st.print()
	if err != nil {
		return nil, err
	}
	res.Output = out
	res.Changed = !bytes.Equal(out, u.Src)
	return res, nil
}

// check type-checks the whole package of st. Errors are expected (missing
// dependencies, build-tag duplicates) and only reduce what can be rewritten.
func (e *Engine) check(st *State) {
	conf := types.Config{
		Importer:    e.importer,
		FakeImportC: true,
		Error:       func(error) {},
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// DO NOT CHECK ERROR HERE.
	// partial type information is enough; untyped nodes are left alone.
	st.pkg, _ = conf.Check(st.file.Name.Name, st.fset, st.files, st.info)
}

func (st *State) print() ([]byte, error) {
	var buf bytes.Buffer
	if err := format.Node(&buf, st.fset, st.file); err != nil {
		return nil, &tt.TransformError{
			Pass: tt.PassPrint,
			Pos:  tt.Position(st.fset, st.file.Package),
			Err:  err,
		}
	}

	out := buf.Bytes()
	if _, err := parser.ParseFile(token.NewFileSet(), st.filename, out, parser.ParseComments); err != nil {
		return nil, &tt.TransformError{
			Pass: tt.PassPrint,
			Pos:  tt.Position(st.fset, st.file.Package),
			Err:  err,
		}
	}
	return out, nil
}
