package formatter

import (
	"fmt"
	"sort"
	"strings"

	tt "github.com/gnolang/gobfus/internal/types"
)

// StatusLine renders the verbose per-file line, e.g.
//
//	CHANGED pkg/a.go (literals=2 flow=1)
func StatusLine(r tt.Report) string {
	var status string
	switch r.Status {
	case tt.StatusChanged:
		status = addStyle.Sprint(r.Status.String())
	case tt.StatusSkipped:
		status = warningStyle.Sprint(r.Status.String())
	default:
		status = noStyle.Sprint(r.Status.String())
	}

	path := r.Rel
	if path == "" {
		path = r.Path
	}
	line := fmt.Sprintf("%s %s", status, fileStyle.Sprint(path))
	if counts := passCounts(r.Passes); counts != "" {
		line += " (" + counts + ")"
	}
	return line
}

func passCounts(passes map[tt.Pass]int) string {
	keys := make([]string, 0, len(passes))
	for p, n := range passes {
		if n > 0 {
			keys = append(keys, string(p))
		}
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, passes[tt.Pass(k)]))
	}
	return strings.Join(parts, " ")
}
