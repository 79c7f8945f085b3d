package bnd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dece/dksarc/internal/archerr"
	"github.com/dece/dksarc/internal/manifest"
)

// rebuildEntry pairs a file on disk with the sidecar metadata Extract wrote
// for it, before Rebuild restores the original add order.
type rebuildEntry struct {
	realPath string
	ident    int
	rawPath  string
}

// Rebuild walks dir (a tree previously written by Extract into a single
// archive directory) and returns a Builder primed to reproduce that
// archive: magic and flags from bnd.json, and one file per "<entry>.json"
// sidecar, added in ascending Ident order so Build assigns the same idents
// Extract originally read.
func Rebuild(dir string) (*Builder, error) {
	info, err := manifest.LoadBndInfo(dir)
	if err != nil {
		return nil, err
	}

	var entries []rebuildEntry
	walkErr := filepath.Walk(dir, func(path string, fi os.FileInfo, walkFileErr error) error {
		if walkFileErr != nil {
			return walkFileErr
		}
		if fi.IsDir() || strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		if filepath.Base(path) == "bnd.json" {
			return nil
		}

		entryInfo, err := manifest.LoadEntryInfo(path)
		if err != nil {
			return fmt.Errorf("%w: loading sidecar for %s: %v", archerr.ErrManifestMissing, path, err)
		}
		entries = append(entries, rebuildEntry{realPath: path, ident: entryInfo.Ident, rawPath: entryInfo.Path})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("%w: walking %s: %v", archerr.ErrIoFailure, dir, walkErr)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ident < entries[j].ident })

	b := NewBuilder()
	b.SetMagic(info.Magic)
	b.SetFlags(info.Flags)
	for _, e := range entries {
		b.Add(e.realPath, e.rawPath)
	}
	return b, nil
}
