package obfuscate

import (
	"encoding/json"
	"path/filepath"

	tt "github.com/gnolang/gobfus/internal/types"
)

// RecordPath returns where the record of the source at rel is stored.
func RecordPath(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel)+".json")
}

func (r *runner) writeRecord(rel string, output []byte, changed bool, passes map[tt.Pass]int) error {
	rec := tt.Record{
		RunID:   r.runID,
		Path:    rel,
		Output:  string(output),
		Changed: changed,
		Passes:  passes,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(RecordPath(r.opts.Records, rel), append(data, '\n'))
}
