package cli

import (
	"encoding/json"
	"io"
)

// PrintJSON writes v as indented JSON. Decisions and token results are
// printed this way so scripts can read the codes.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
