// Package manifest persists the sidecar metadata that extraction writes
// and reimport consults, so that an extract → reimport round trip can
// rebuild byte-comparable archives. None of this metadata is derivable
// from the extracted tree alone: record grouping, standalone entry idents,
// and the compressed-or-not distinction are all manifest-only.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/dece/dksarc/internal/archerr"
)

const (
	// RecordsFileName is the per-archive sidecar mapping record index to
	// the ordered relative paths it owns.
	RecordsFileName = "records.json"
	// DecompressedFileName is the per-archive sidecar listing relative
	// paths (without their .dcx extension) whose originals were
	// compressed packages.
	DecompressedFileName = "decompressed.json"
)

// EntryInfo is the sidecar carried alongside each extracted standalone
// entry, as "<entry>.json".
type EntryInfo struct {
	Ident int    `json:"ident"`
	Path  string `json:"path"`
}

// BndInfo is the sidecar carried once per extracted standalone archive
// directory, as "bnd.json".
type BndInfo struct {
	Magic string `json:"magic"`
	Flags uint32 `json:"flags"`
}

// SaveRecords writes records.json into dir. records maps a record index to
// the ordered list of relative paths that record owns.
func SaveRecords(dir string, records map[int][]string) error {
	obj := make(map[string][]string, len(records))
	for idx, paths := range records {
		obj[strconv.Itoa(idx)] = paths
	}
	return writeJSON(filepath.Join(dir, RecordsFileName), obj)
}

// LoadRecords reads records.json from dir. Its absence is reported as
// ErrManifestMissing, since ExternalArchive.Import cannot proceed without
// it.
func LoadRecords(dir string) (map[int][]string, error) {
	path := filepath.Join(dir, RecordsFileName)
	data, err := os.ReadFile(path) //nolint:gosec // G304: dir is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", archerr.ErrManifestMissing, path)
		}
		return nil, fmt.Errorf("%w: reading %s: %v", archerr.ErrIoFailure, path, err)
	}

	var obj map[string][]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", archerr.ErrStructurallyInconsistent, path, err)
	}

	records := make(map[int][]string, len(obj))
	for key, paths := range obj {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: non-numeric record index %q in %s", archerr.ErrStructurallyInconsistent, key, path)
		}
		records[idx] = paths
	}
	return records, nil
}

// SaveDecompressed writes decompressed.json into dir: the flat list of
// relative paths (without their .dcx extension) whose originals were
// compressed packages.
func SaveDecompressed(dir string, paths []string) error {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	return writeJSON(filepath.Join(dir, DecompressedFileName), sorted)
}

// LoadDecompressed reads decompressed.json from dir. It is optional: a
// missing file yields an empty, non-error result.
func LoadDecompressed(dir string) ([]string, error) {
	path := filepath.Join(dir, DecompressedFileName)
	data, err := os.ReadFile(path) //nolint:gosec // G304: dir is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %v", archerr.ErrIoFailure, path, err)
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", archerr.ErrStructurallyInconsistent, path, err)
	}
	return list, nil
}

// SaveEntryInfo writes the sidecar for a single standalone entry at
// path+".json".
func SaveEntryInfo(path string, info EntryInfo) error {
	return writeJSON(path+".json", info)
}

// LoadEntryInfo reads the sidecar for a single standalone entry at
// path+".json".
func LoadEntryInfo(path string) (EntryInfo, error) {
	var info EntryInfo
	data, err := os.ReadFile(path + ".json") //nolint:gosec // G304: path is caller-controlled
	if err != nil {
		return info, fmt.Errorf("%w: reading %s.json: %v", archerr.ErrIoFailure, path, err)
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("%w: parsing %s.json: %v", archerr.ErrStructurallyInconsistent, path, err)
	}
	return info, nil
}

// SaveBndInfo writes bnd.json describing the archive extracted into dir.
func SaveBndInfo(dir string, info BndInfo) error {
	return writeJSON(filepath.Join(dir, "bnd.json"), info)
}

// LoadBndInfo reads bnd.json describing the archive previously extracted
// into dir.
func LoadBndInfo(dir string) (BndInfo, error) {
	var info BndInfo
	path := filepath.Join(dir, "bnd.json")
	data, err := os.ReadFile(path) //nolint:gosec // G304: dir is caller-controlled
	if err != nil {
		return info, fmt.Errorf("%w: reading %s: %v", archerr.ErrManifestMissing, path, err)
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("%w: parsing %s: %v", archerr.ErrStructurallyInconsistent, path, err)
	}
	return info, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshaling %s: %v", archerr.ErrIoFailure, path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // G306: sidecar metadata, not sensitive
		return fmt.Errorf("%w: writing %s: %v", archerr.ErrIoFailure, path, err)
	}
	return nil
}
