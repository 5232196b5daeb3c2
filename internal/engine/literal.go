package engine

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"strconv"
	"unicode/utf8"

	"golang.org/x/tools/go/ast/astutil"

	tt "github.com/gnolang/gobfus/internal/types"
)

// pass is one full traversal of the file. pre and post follow the
// astutil.Apply contract.
type pass interface {
	name() tt.Pass
	pre(st *State, c *astutil.Cursor) bool
	post(st *State, c *astutil.Cursor) bool
}

// literalPass replaces string (and optionally integer) literals with calls
// that reveal a sealed token at run time.
//
// Only literals the type checker gave a concrete type are rewritten; a
// literal that is still untyped sits in a constant context and must stay a
// constant.
type literalPass struct{}

func (literalPass) name() tt.Pass { return tt.PassLiterals }

func (lp literalPass) pre(st *State, c *astutil.Cursor) bool {
	if st.frozen[c.Node()] {
		return false
	}

	switch n := c.Node().(type) {
	case *ast.GenDecl:
		if n.Tok == token.CONST || n.Tok == token.IMPORT {
			return false
		}
	case *ast.ArrayType:
		if n.Len != nil {
			st.frozen[n.Len] = true
		}
	case *ast.CompositeLit:
		st.freezeIndexKeys(n)
	case *ast.BasicLit:
		if _, ok := c.Parent().(*ast.Field); ok && c.Name() == "Tag" {
			lp.tag(st, n)
			return false
		}
		if st.ignored(st.file, n.Pos(), tt.PassLiterals) {
			return false
		}
		switch n.Kind {
		case token.STRING:
			if st.policy.Literals {
				lp.protectString(st, c, n)
			}
		case token.INT:
			if st.policy.Numbers {
				lp.protectInt(st, c, n)
			}
		}
		return false
	}
	return true
}

func (lp literalPass) post(st *State, c *astutil.Cursor) bool {
	switch n := c.Node().(type) {
	case *ast.AssignStmt:
		if n.Tok == token.DEFINE && len(n.Lhs) == len(n.Rhs) {
			for i, rhs := range n.Rhs {
				st.recordBinding(n.Lhs[i], rhs)
			}
		}
	case *ast.ValueSpec:
		if len(n.Names) == len(n.Values) {
			for i, v := range n.Values {
				st.recordBinding(n.Names[i], v)
			}
		}
	case *ast.SwitchStmt:
		id, ok := n.Tag.(*ast.Ident)
		if !ok {
			break
		}
		if obj := st.info.Uses[id]; obj != nil && st.protected[obj] {
			n.Tag = call(st.strPkg, "View", id.Pos(), id)
			st.counts[tt.PassLiterals]++
		}
	}
	return true
}

// recordBinding remembers that lhs names a local binding whose initial value
// came from a protected string literal.
func (st *State) recordBinding(lhs, rhs ast.Expr) {
	if !st.revealed[rhs] {
		return
	}
	id, ok := lhs.(*ast.Ident)
	if !ok || id.Name == "_" {
		return
	}
	obj := st.info.Defs[id]
	if obj == nil {
		return
	}
	if st.pkg != nil && obj.Parent() == st.pkg.Scope() {
		return
	}
	st.protected[obj] = true
}

// freezeIndexKeys marks the keys of array and slice literals, which must be
// constants.
func (st *State) freezeIndexKeys(lit *ast.CompositeLit) {
	tv, ok := st.info.Types[lit]
	if !ok || tv.Type == nil {
		for _, elt := range lit.Elts {
			if kv, ok := elt.(*ast.KeyValueExpr); ok {
				st.frozen[kv.Key] = true
			}
		}
		return
	}
	switch tv.Type.Underlying().(type) {
	case *types.Array, *types.Slice:
		for _, elt := range lit.Elts {
			if kv, ok := elt.(*ast.KeyValueExpr); ok {
				st.frozen[kv.Key] = true
			}
		}
	}
}

func (st *State) wantString(value string) bool {
	if utf8.RuneCountInString(value) < st.policy.MinLiteralLength {
		return false
	}
	return !st.policy.IgnoresLiteral(value)
}

// tag handles a struct tag reached with attribute skipping disabled. Tags
// must be string constants, so a tag the filters would protect cannot be
// rewritten.
func (literalPass) tag(st *State, lit *ast.BasicLit) {
	if !st.policy.Literals || st.ignored(st.file, lit.Pos(), tt.PassLiterals) {
		return
	}
	value, err := strconv.Unquote(lit.Value)
	if err != nil || !st.wantString(value) {
		return
	}
	st.fail(tt.PassLiterals, lit.Pos(), fmt.Errorf("struct tag %s must stay a constant; enable skip_attributes or add it to ignore_strings", lit.Value))
}

func (literalPass) protectString(st *State, c *astutil.Cursor, lit *ast.BasicLit) {
	value, err := strconv.Unquote(lit.Value)
	if err != nil || !st.wantString(value) {
		return
	}

	tv, ok := st.info.Types[lit]
	if !ok || tv.Type == nil {
		return
	}
	conv, ok := st.stringType(tv.Type)
	if !ok {
		return
	}

	sealed, err := st.sealer.Seal(value)
	if err != nil {
		st.fail(tt.PassLiterals, lit.Pos(), err)
		return
	}

	var repl ast.Expr = call(st.strPkg, "S", lit.Pos(), stringLit(lit.Pos(), sealed))
	if conv != "" {
		repl = convert(conv, lit.Pos(), repl)
	}
	c.Replace(repl)
	st.revealed[repl] = true
	st.counts[tt.PassLiterals]++
}

// stringType reports whether a value of type t can be produced by
// obfstr.S. The returned name is the conversion to wrap the call in, empty
// for plain string.
func (st *State) stringType(t types.Type) (string, bool) {
	t = types.Unalias(t)
	if types.Identical(t, types.Typ[types.String]) {
		return "", true
	}

	named, ok := t.(*types.Named)
	if !ok || st.pkg == nil {
		return "", false
	}
	obj := named.Obj()
	if obj.Pkg() != st.pkg || obj.Parent() != st.pkg.Scope() || named.TypeParams().Len() > 0 {
		return "", false
	}
	basic, ok := named.Underlying().(*types.Basic)
	if !ok || basic.Kind() != types.String || st.shadowed(obj.Name()) {
		return "", false
	}
	return obj.Name(), true
}

func (literalPass) protectInt(st *State, c *astutil.Cursor, lit *ast.BasicLit) {
	tv, ok := st.info.Types[lit]
	if !ok || tv.Type == nil || tv.Value == nil {
		return
	}
	basic, ok := types.Unalias(tv.Type).(*types.Basic)
	if !ok || basic.Info()&types.IsInteger == 0 || basic.Info()&types.IsUntyped != 0 {
		return
	}
	if st.shadowed(basic.Name()) || st.constantParent(c) {
		return
	}
	v, exact := constant.Uint64Val(constant.ToInt(tv.Value))
	if !exact {
		return
	}

	sealed, err := st.sealer.Seal(strconv.FormatUint(v, 10))
	if err != nil {
		st.fail(tt.PassLiterals, lit.Pos(), err)
		return
	}

	repl := convert(basic.Name(), lit.Pos(), call(st.strPkg, "N", lit.Pos(), stringLit(lit.Pos(), sealed)))
	c.Replace(repl)
	st.counts[tt.PassLiterals]++
}

// constantParent reports whether the literal is an operand of a larger
// constant expression. Constant arithmetic is exact while run-time
// arithmetic wraps, so such operands are left alone.
func (st *State) constantParent(c *astutil.Cursor) bool {
	parent, ok := c.Parent().(ast.Expr)
	if !ok {
		return false
	}
	tv, ok := st.info.Types[parent]
	return ok && tv.Value != nil
}
