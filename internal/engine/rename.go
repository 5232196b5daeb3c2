package engine

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"hash/fnv"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/gnolang/gobfus/internal/directive"
	"github.com/gnolang/gobfus/internal/policy"
	tt "github.com/gnolang/gobfus/internal/types"
)

const (
	suffixMin   = 1000
	suffixRange = 9000
	maxDraws    = 4 * suffixRange
)

// renamePass appends a numeric suffix to unexported package functions and
// to local variables. The plan is made up front from type information, so
// the traversal only swaps spellings of identifiers bound to a planned
// object.
type renamePass struct{}

func (renamePass) name() tt.Pass { return tt.PassRename }

func (renamePass) pre(st *State, c *astutil.Cursor) bool {
	id, ok := c.Node().(*ast.Ident)
	if !ok {
		return true
	}

	if name, ok := st.guards[id]; ok {
		id.Name = name
		st.counts[tt.PassRename]++
		return false
	}

	obj, defined := st.info.Defs[id]
	if obj == nil {
		obj = st.info.Uses[id]
	}
	if obj != nil {
		if name, ok := st.renames[obj]; ok {
			id.Name = name
			st.counts[tt.PassRename]++
		}
		return false
	}
	if defined {
		// package clause or type switch symbol
		return false
	}

	// The type checker may give up on an expression; a bare identifier that
	// spells a renamed function still refers to it.
	if name, ok := st.funcRenames[id.Name]; ok && unresolvedRef(c) {
		id.Name = name
		st.counts[tt.PassRename]++
	}
	return false
}

func (renamePass) post(*State, *astutil.Cursor) bool { return true }

// unresolvedRef reports whether the identifier at c can only be a reference
// to a package-level name.
func unresolvedRef(c *astutil.Cursor) bool {
	switch parent := c.Parent().(type) {
	case *ast.AssignStmt:
		return parent.Tok != token.DEFINE || c.Name() != "Lhs"
	case *ast.SelectorExpr:
		return c.Name() != "Sel"
	case *ast.KeyValueExpr:
		return c.Name() != "Key"
	case *ast.File, *ast.ImportSpec, *ast.LabeledStmt, *ast.BranchStmt, *ast.Field:
		return false
	}
	return true
}

func (st *State) planRenames() error {
	if importsC(st.file) {
		return nil
	}

	if !st.keepFuncs {
		if err := st.planFuncs(); err != nil {
			return err
		}
	}
	return st.planLocals()
}

// planFuncs derives function names from (seed, package, name) only, so
// every file of a package computes the same plan.
func (st *State) planFuncs() error {
	byName := make(map[string][]types.Object)
	for _, f := range st.files {
		for _, decl := range RenameableFuncs(st.fset, f, st.directives[f], st.policy) {
			obj := st.info.Defs[decl.Name]
			byName[decl.Name.Name] = append(byName[decl.Name.Name], obj)
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		h := fnv.New64a()
		h.Write([]byte(st.pkgDir))
		h.Write([]byte{0})
		h.Write([]byte(name))
		newName, ok := st.suffixed(name, rand.New(rand.NewPCG(st.seed, h.Sum64())))
		if !ok {
			return &tt.TransformError{
				Pass: tt.PassRename,
				Err:  fmt.Errorf("no free name for function %s", name),
			}
		}
		st.funcRenames[name] = newName
		for _, obj := range byName[name] {
			if obj != nil {
				st.renames[obj] = newName
			}
		}
	}
	return nil
}

// planLocals picks a name for every local variable declared in the file, in
// source order.
func (st *State) planLocals() error {
	var err error
	ast.Inspect(st.file, func(n ast.Node) bool {
		if err != nil {
			return false
		}
		if sw, ok := n.(*ast.TypeSwitchStmt); ok {
			err = st.planGuard(sw)
			return err == nil
		}
		id, ok := n.(*ast.Ident)
		if !ok {
			return true
		}
		v, ok := st.info.Defs[id].(*types.Var)
		if !ok || !st.renameableVar(v) || st.ignored(st.file, id.Pos(), tt.PassRename) {
			return true
		}
		if _, done := st.renames[v]; done {
			return true
		}
		newName, ok := st.suffixed(v.Name(), st.rng)
		if !ok {
			err = &tt.TransformError{
				Pass: tt.PassRename,
				Pos:  tt.Position(st.fset, id.Pos()),
				Err:  fmt.Errorf("no free name for %s", v.Name()),
			}
			return false
		}
		st.renames[v] = newName
		return true
	})
	return err
}

// planGuard gives the symbol of a type switch guard one new name shared by
// the implicit variables of all its clauses.
func (st *State) planGuard(sw *ast.TypeSwitchStmt) error {
	assign, ok := sw.Assign.(*ast.AssignStmt)
	if !ok || len(assign.Lhs) != 1 {
		return nil
	}
	id, ok := assign.Lhs[0].(*ast.Ident)
	if !ok || id.Name == "_" || st.policy.Preserves(id.Name) || st.ignored(st.file, id.Pos(), tt.PassRename) {
		return nil
	}

	var objs []types.Object
	for _, stmt := range sw.Body.List {
		if obj := st.info.Implicits[stmt]; obj != nil {
			objs = append(objs, obj)
		}
	}
	if len(objs) == 0 {
		return nil
	}

	newName, ok := st.suffixed(id.Name, st.rng)
	if !ok {
		return &tt.TransformError{
			Pass: tt.PassRename,
			Pos:  tt.Position(st.fset, id.Pos()),
			Err:  fmt.Errorf("no free name for %s", id.Name),
		}
	}
	st.guards[id] = newName
	for _, obj := range objs {
		st.renames[obj] = newName
	}
	return nil
}

func (st *State) renameableVar(v *types.Var) bool {
	if v.IsField() || v.Name() == "_" || v.Parent() == nil {
		return false
	}
	if st.pkg != nil && v.Parent() == st.pkg.Scope() {
		return false
	}
	return !st.policy.Preserves(v.Name())
}

// suffixed draws name+NNNN until the result is unused, and reserves it.
func (st *State) suffixed(name string, r *rand.Rand) (string, bool) {
	for i := 0; i < maxDraws; i++ {
		candidate := name + strconv.Itoa(suffixMin+r.IntN(suffixRange))
		if !st.taken(candidate) {
			st.names[candidate] = struct{}{}
			return candidate, true
		}
	}
	return "", false
}

// RenameableFuncs returns the declarations of f whose names the rename pass
// may change: unexported package functions with a body that are not main or
// init, not preserved, not exported to C and not the target of a
// go:linkname directive.
func RenameableFuncs(fset *token.FileSet, f *ast.File, dirs *directive.Manager, p *policy.Policy) []*ast.FuncDecl {
	if importsC(f) {
		return nil
	}

	linknamed := make(map[string]bool)
	for _, cg := range f.Comments {
		for _, c := range cg.List {
			if fields := strings.Fields(c.Text); len(fields) >= 2 && fields[0] == "//go:linkname" {
				linknamed[fields[1]] = true
			}
		}
	}

	var decls []*ast.FuncDecl
	for _, decl := range f.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil || fn.Body == nil {
			continue
		}
		name := fn.Name.Name
		switch {
		case name == "_", name == "main", name == "init":
			continue
		case ast.IsExported(name), p.Preserves(name), linknamed[name]:
			continue
		case exportedToC(fn.Doc):
			continue
		case dirs.Ignored(fset.Position(fn.Pos()), string(tt.PassRename)):
			continue
		}
		decls = append(decls, fn)
	}
	return decls
}

func exportedToC(doc *ast.CommentGroup) bool {
	if doc == nil {
		return false
	}
	for _, c := range doc.List {
		if strings.HasPrefix(c.Text, "//export ") {
			return true
		}
	}
	return false
}

func importsC(f *ast.File) bool {
	for _, imp := range f.Imports {
		if importPath(imp) == "C" {
			return true
		}
	}
	return false
}
