package engine

import (
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"hash/fnv"
	"math/rand/v2"
	"sort"
	"strconv"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/gnolang/gobfus/internal/directive"
	"github.com/gnolang/gobfus/internal/policy"
	tt "github.com/gnolang/gobfus/internal/types"
)

// State is the per-file working set shared by the passes of one Transform
// call. It is never reused across files.
type State struct {
	policy *policy.Policy
	sealer Sealer
	seed   uint64

	filename string
	pkgDir   string
	fset     *token.FileSet
	file     *ast.File
	// files is the whole package, file first.
	files      []*ast.File
	directives map[*ast.File]*directive.Manager
	keepFuncs  bool

	pkg  *types.Package
	info *types.Info

	// names holds every identifier spelled anywhere in the package,
	// including the ones introduced by renaming.
	names map[string]struct{}
	// localNames holds the names of objects declared below package scope.
	localNames map[string]struct{}

	strPkg, flowPkg       string
	addStrImp, addFlowImp bool

	renames map[types.Object]string
	// guards maps the symbol of a type switch guard to its new name. The
	// checker binds no object to it, only one implicit object per clause.
	guards map[*ast.Ident]string
	// funcRenames maps original function names to their new spelling for
	// identifiers the type checker left unresolved.
	funcRenames map[string]string
	rng         *rand.Rand

	// protected records local bindings initialized from a protected literal.
	protected map[types.Object]bool
	// revealed holds the obfstr.S calls the literal pass produced. Integer
	// reveals are not kept: obfstr.View only takes strings.
	revealed map[ast.Expr]bool
	// frozen holds subtrees that must stay constant expressions.
	frozen map[ast.Node]bool

	counts map[tt.Pass]int
	err    error
}

func newState(e *Engine, fset *token.FileSet, file *ast.File, u Unit) *State {
	st := &State{
		policy:     e.policy,
		sealer:     e.sealer,
		seed:       e.seed,
		filename:   u.Filename,
		pkgDir:     u.PkgDir,
		fset:       fset,
		file:       file,
		files:      []*ast.File{file},
		directives: make(map[*ast.File]*directive.Manager),
		keepFuncs:  u.KeepFuncs,
		info: &types.Info{
			Types:     make(map[ast.Expr]types.TypeAndValue),
			Defs:      make(map[*ast.Ident]types.Object),
			Uses:      make(map[*ast.Ident]types.Object),
			Implicits: make(map[ast.Node]types.Object),
		},
		names:       make(map[string]struct{}),
		localNames:  make(map[string]struct{}),
		renames:     make(map[types.Object]string),
		guards:      make(map[*ast.Ident]string),
		funcRenames: make(map[string]string),
		protected:   make(map[types.Object]bool),
		revealed:    make(map[ast.Expr]bool),
		frozen:      make(map[ast.Node]bool),
		counts:      make(map[tt.Pass]int),
	}
	if st.pkgDir == "" {
		st.pkgDir = u.Filename
	}

	filenames := make([]string, 0, len(u.Siblings))
	for name := range u.Siblings {
		if name != u.Filename {
			filenames = append(filenames, name)
		}
	}
	sort.Strings(filenames)

	for _, name := range filenames {
		f, err := parser.ParseFile(fset, name, u.Siblings[name], parser.ParseComments)
		if err != nil || f.Name.Name != file.Name.Name {
			continue
		}
		st.files = append(st.files, f)
	}

	for _, f := range st.files {
		st.directives[f] = directive.ParseComments(f, fset)
		ast.Inspect(f, func(n ast.Node) bool {
			if id, ok := n.(*ast.Ident); ok {
				st.names[id.Name] = struct{}{}
			}
			return true
		})
	}

	h := fnv.New64a()
	h.Write([]byte(u.Filename))
	st.rng = rand.New(rand.NewPCG(st.seed, h.Sum64()))
	return st
}

// prepare runs after type checking and before any pass: it fixes the local
// names of the companion imports and plans renames.
func (st *State) prepare() error {
	for _, obj := range st.info.Defs {
		if obj == nil || obj.Parent() == nil {
			continue
		}
		if st.pkg != nil && obj.Parent() == st.pkg.Scope() {
			continue
		}
		st.localNames[obj.Name()] = struct{}{}
	}
	for _, obj := range st.info.Implicits {
		if v, ok := obj.(*types.Var); ok {
			st.localNames[v.Name()] = struct{}{}
		}
	}

	st.strPkg, st.addStrImp = st.importName(StrImportPath, "obfstr")
	st.flowPkg, st.addFlowImp = st.importName(FlowImportPath, "obfflow")

	if st.policy.Rename {
		return st.planRenames()
	}
	return nil
}

// importName returns the name the file refers to path by, and whether an
// import must be added for it.
func (st *State) importName(path, base string) (string, bool) {
	for _, imp := range st.file.Imports {
		if importPath(imp) != path {
			continue
		}
		if imp.Name == nil {
			return base, false
		}
		if name := imp.Name.Name; name != "_" && name != "." {
			return name, false
		}
	}

	name := base
	for i := 1; st.taken(name); i++ {
		name = base + strconv.Itoa(i)
	}
	st.names[name] = struct{}{}
	return name, true
}

func importPath(imp *ast.ImportSpec) string {
	path, err := strconv.Unquote(imp.Path.Value)
	if err != nil {
		return ""
	}
	return path
}

func (st *State) taken(name string) bool {
	_, ok := st.names[name]
	return ok
}

// run drives one pass over the file. The attribute hook applies to every
// pass: with SkipAttributes on, struct tags and comments are never entered.
func (st *State) run(p pass) error {
	st.counts[p.name()] = 0
	astutil.Apply(st.file, func(c *astutil.Cursor) bool {
		if st.err != nil {
			return false
		}
		if st.policy.SkipAttributes && isAttribute(c) {
			return false
		}
		return p.pre(st, c)
	}, func(c *astutil.Cursor) bool {
		if st.err != nil {
			return false
		}
		return p.post(st, c)
	})
	return st.err
}

func isAttribute(c *astutil.Cursor) bool {
	switch c.Node().(type) {
	case *ast.CommentGroup, *ast.Comment:
		return true
	case *ast.BasicLit:
		_, ok := c.Parent().(*ast.Field)
		return ok && c.Name() == "Tag"
	}
	return false
}

func (st *State) fail(pass tt.Pass, pos token.Pos, err error) {
	if st.err == nil {
		st.err = &tt.TransformError{Pass: pass, Pos: tt.Position(st.fset, pos), Err: err}
	}
}

func (st *State) ignored(f *ast.File, pos token.Pos, pass tt.Pass) bool {
	return st.directives[f].Ignored(st.fset.Position(pos), string(pass))
}

// shadowed reports whether name is declared below package scope anywhere in
// the package, so a synthesized reference to a package-level or universe
// name could resolve to something else.
func (st *State) shadowed(name string) bool {
	_, ok := st.localNames[name]
	return ok
}

func (st *State) ensureImports() {
	if st.counts[tt.PassLiterals] > 0 && st.addStrImp {
		addImport(st.fset, st.file, st.strPkg, StrImportPath)
	}
	if st.counts[tt.PassFlow] > 0 && st.addFlowImp {
		addImport(st.fset, st.file, st.flowPkg, FlowImportPath)
	}
}

// addImport adds path under name after the package clause, its doc comment
// and build constraints. An import already present is never duplicated.
func addImport(fset *token.FileSet, f *ast.File, name, path string) {
	if name == defaultName(path) {
		astutil.AddImport(fset, f, path)
		return
	}
	astutil.AddNamedImport(fset, f, name, path)
}

func defaultName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// call builds pkg.fn(args...) positioned at pos.
func call(pkg, fn string, pos token.Pos, args ...ast.Expr) *ast.CallExpr {
	return &ast.CallExpr{
		Fun: &ast.SelectorExpr{
			X:   &ast.Ident{NamePos: pos, Name: pkg},
			Sel: &ast.Ident{NamePos: pos, Name: fn},
		},
		Lparen: pos,
		Args:   args,
		Rparen: pos,
	}
}

// convert builds typ(x) positioned at pos.
func convert(typ string, pos token.Pos, x ast.Expr) *ast.CallExpr {
	return &ast.CallExpr{
		Fun:    &ast.Ident{NamePos: pos, Name: typ},
		Lparen: pos,
		Args:   []ast.Expr{x},
		Rparen: pos,
	}
}

func stringLit(pos token.Pos, s string) *ast.BasicLit {
	return &ast.BasicLit{ValuePos: pos, Kind: token.STRING, Value: strconv.Quote(s)}
}
