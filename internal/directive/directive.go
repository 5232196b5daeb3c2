// Package directive parses //gobfus:ignore comments and answers whether a
// position is opted out of a pass.
package directive

import (
	"fmt"
	"go/ast"
	"go/token"
	"strings"
)

const ignorePrefix = "//gobfus:ignore"

// Manager holds the ignore scopes of a single file.
type Manager struct {
	scopes []ignoreScope
}

// ignoreScope represents a line range where some passes are disabled.
type ignoreScope struct {
	passes map[string]struct{}
	start  token.Position
	end    token.Position
}

// ParseComments collects the ignore directives of f.
func ParseComments(f *ast.File, fset *token.FileSet) *Manager {
	manager := Manager{}
	stmtMap := indexStatementsByLine(f, fset)
	packageLine := fset.Position(f.Package).Line

	for _, cg := range f.Comments {
		for _, comment := range cg.List {
			scope, err := parseComment(comment, f, fset, stmtMap, packageLine)
			if err != nil {
				continue
			}
			manager.scopes = append(manager.scopes, scope)
		}
	}
	return &manager
}

func parseComment(
	comment *ast.Comment,
	f *ast.File,
	fset *token.FileSet,
	stmtMap map[int]ast.Stmt,
	packageLine int,
) (ignoreScope, error) {
	var scope ignoreScope
	text := comment.Text

	if !strings.HasPrefix(text, ignorePrefix) {
		return scope, fmt.Errorf("not an ignore directive")
	}

	rest := text[len(ignorePrefix):]
	// "//gobfus:ignore" alone disables every pass; a colon introduces a list.
	if len(rest) > 0 && rest[0] != ':' {
		return scope, fmt.Errorf("invalid ignore directive format")
	}
	if len(rest) > 0 {
		rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
		if rest == "" {
			return scope, fmt.Errorf("invalid ignore directive: no passes after colon")
		}
	}
	scope.passes = parsePassNames(rest)
	pos := fset.Position(comment.Slash)

	if pos.Line < packageLine {
		scope.start = fset.Position(f.Pos())
		scope.end = fset.Position(f.End())
		scope.start.Line = 1
		return scope, nil
	}

	if isInlineComment(fset, comment, stmtMap) {
		stmt := stmtMap[pos.Line]
		scope.start = fset.Position(stmt.Pos())
		scope.end = fset.Position(stmt.End())
		return scope, nil
	}

	nextLine := pos.Line + 1
	if stmt, ok := stmtMap[nextLine]; ok {
		scope.start = pos
		scope.end = fset.Position(stmt.End())
		return scope, nil
	}

	if decl := findDeclAfterLine(fset, f, pos.Line); decl != nil {
		if fset.Position(decl.Pos()).Line == nextLine {
			scope.start = pos
			scope.end = fset.Position(decl.End())
			return scope, nil
		}
	}

	scope.start = pos
	scope.end = pos
	return scope, nil
}

func parsePassNames(text string) map[string]struct{} {
	passes := make(map[string]struct{})
	if text == "" {
		return passes
	}
	for _, name := range strings.Split(text, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			passes[name] = struct{}{}
		}
	}
	return passes
}

// indexStatementsByLine maps each line to the first statement starting on it.
func indexStatementsByLine(f *ast.File, fset *token.FileSet) map[int]ast.Stmt {
	stmtMap := make(map[int]ast.Stmt)
	ast.Inspect(f, func(n ast.Node) bool {
		if stmt, ok := n.(ast.Stmt); ok {
			line := fset.Position(stmt.Pos()).Line
			if _, exists := stmtMap[line]; !exists {
				stmtMap[line] = stmt
			}
		}
		return true
	})
	return stmtMap
}

// findDeclAfterLine returns the first top-level declaration starting at or after line.
// Doc comments belong to their declaration, so the declaration keyword is used.
func findDeclAfterLine(fset *token.FileSet, f *ast.File, line int) ast.Decl {
	for _, decl := range f.Decls {
		var start token.Pos
		switch d := decl.(type) {
		case *ast.FuncDecl:
			start = d.Type.Func
		case *ast.GenDecl:
			start = d.TokPos
		}
		if fset.Position(start).Line >= line {
			return decl
		}
	}
	return nil
}

func isInlineComment(fset *token.FileSet, comment *ast.Comment, stmtMap map[int]ast.Stmt) bool {
	pos := fset.Position(comment.Slash)
	if stmt, ok := stmtMap[pos.Line]; ok {
		return pos.Offset > fset.Position(stmt.Pos()).Offset
	}
	return false
}

// Ignored reports whether pass is disabled at pos.
func (m *Manager) Ignored(pos token.Position, pass string) bool {
	if m == nil {
		return false
	}
	for _, scope := range m.scopes {
		if pos.Line < scope.start.Line || pos.Line > scope.end.Line {
			continue
		}
		if len(scope.passes) == 0 {
			return true
		}
		if _, ok := scope.passes[pass]; ok {
			return true
		}
	}
	return false
}
