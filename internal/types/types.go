package types

import (
	"go/token"
)

// Pass names a single toggleable tree rewrite.
type Pass string

const (
	PassRename   Pass = "rename"
	PassLiterals Pass = "literals"
	PassFlow     Pass = "flow"
	// PassPrint is not a rewrite; it names the output stage in errors.
	PassPrint Pass = "print"
)

// Passes lists the rewrites in the order the engine runs them.
var Passes = []Pass{PassRename, PassLiterals, PassFlow}

// Result is the outcome of transforming one file.
type Result struct {
	Filename string
	Original []byte
	Output   []byte
	Changed  bool
	// Passes counts the rewrites each pass performed.
	Passes map[Pass]int
}

// Fired reports whether pass rewrote at least one node.
func (r *Result) Fired(pass Pass) bool {
	return r != nil && r.Passes[pass] > 0
}

// Status is the per-file outcome printed in verbose mode.
type Status int

const (
	StatusUnchanged Status = iota
	StatusChanged
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusChanged:
		return "CHANGED"
	case StatusSkipped:
		return "SKIP"
	default:
		return "UNCHANGED"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Report describes what happened to one discovered file.
type Report struct {
	Path       string       `json:"path"`
	Rel        string       `json:"rel"`
	OutputPath string       `json:"output_path,omitempty"`
	Status     Status       `json:"status"`
	Passes     map[Pass]int `json:"passes,omitempty"`
	Diff       string       `json:"-"`
}

// Record is the structured per-file result written to the records tree.
type Record struct {
	RunID   string       `json:"run_id"`
	Path    string       `json:"path"`
	Output  string       `json:"output"`
	Changed bool         `json:"changed"`
	Passes  map[Pass]int `json:"passes,omitempty"`
}

// Position is a helper for errors that only carry a token.Position.
func Position(fset *token.FileSet, pos token.Pos) token.Position {
	if fset == nil || !pos.IsValid() {
		return token.Position{}
	}
	return fset.Position(pos)
}
