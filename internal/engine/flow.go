package engine

import (
	"go/ast"
	"go/token"

	"golang.org/x/tools/go/ast/astutil"

	tt "github.com/gnolang/gobfus/internal/types"
)

// flowPass inserts a marker call as the first statement of every
// control-flow block. An else-if is an *ast.IfStmt and gets its markers when
// the traversal reaches it.
type flowPass struct{}

func (flowPass) name() tt.Pass { return tt.PassFlow }

func (flowPass) pre(st *State, c *astutil.Cursor) bool {
	n := c.Node()
	if n == nil {
		return true
	}
	if _, ok := n.(ast.Stmt); ok && st.ignored(st.file, n.Pos(), tt.PassFlow) {
		return true
	}

	switch n := n.(type) {
	case *ast.IfStmt:
		st.markBlock(n.Body)
		if els, ok := n.Else.(*ast.BlockStmt); ok {
			st.markBlock(els)
		}
	case *ast.ForStmt:
		st.markBlock(n.Body)
	case *ast.RangeStmt:
		st.markBlock(n.Body)
	case *ast.CaseClause:
		n.Body = st.mark(n.Colon, n.Body)
	case *ast.CommClause:
		n.Body = st.mark(n.Colon, n.Body)
	}
	return true
}

func (flowPass) post(*State, *astutil.Cursor) bool { return true }

func (st *State) markBlock(b *ast.BlockStmt) {
	if b == nil {
		return
	}
	b.List = st.mark(b.Lbrace, b.List)
}

// mark prepends a marker to list. Prepending keeps a trailing fallthrough
// last.
func (st *State) mark(pos token.Pos, list []ast.Stmt) []ast.Stmt {
	st.counts[tt.PassFlow]++
	stmt := &ast.ExprStmt{X: call(st.flowPkg, "Mark", pos)}
	return append([]ast.Stmt{stmt}, list...)
}
