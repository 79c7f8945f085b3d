// Package filelist loads and resolves the JSON key→path mapping used to
// recover human-readable names for external archive entries on export.
package filelist

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dece/dksarc/internal/archerr"
	"github.com/dece/dksarc/internal/pathkey"
)

// List maps a PathKey to the relative virtual path the game uses for it.
// A List is read-only once loaded.
type List struct {
	byKey map[pathkey.Key]string
}

// Load reads a filelist JSON object (8-hex-digit key → path beginning with
// "/") from path.
func Load(path string) (*List, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("%w: reading filelist %s: %v", archerr.ErrIoFailure, path, err)
	}

	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: parsing filelist %s: %v", archerr.ErrStructurallyInconsistent, path, err)
	}

	byKey := make(map[pathkey.Key]string, len(obj))
	for hexKey, relPath := range obj {
		key, err := pathkey.ParseKey(hexKey)
		if err != nil {
			return nil, fmt.Errorf("%w: filelist %s: %v", archerr.ErrStructurallyInconsistent, path, err)
		}
		byKey[key] = relPath
	}

	return &List{byKey: byKey}, nil
}

// Empty returns a List with no entries, used when no filelist is
// available for an archive index.
func Empty() *List {
	return &List{byKey: map[pathkey.Key]string{}}
}

// Resolve returns the relative path registered for key, and whether one
// was found. A miss is not an error: callers fall back to a name built from
// the key's 8-hex-digit form (see pathkey.Key.String; Export writes
// "file_<HEX>.<ext>"), per archerr.ErrNameResolutionMiss.
func (l *List) Resolve(key pathkey.Key) (string, bool) {
	if l == nil {
		return "", false
	}
	p, ok := l.byKey[key]
	return p, ok
}
