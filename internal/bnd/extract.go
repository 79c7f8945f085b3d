package bnd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dece/dksarc/internal/archerr"
	"github.com/dece/dksarc/internal/manifest"
)

// ExtractOptions controls where Extract places entries.
type ExtractOptions struct {
	// ArchiveDir is the directory containing the archive file itself;
	// relative entries land here unless ForceOutputDir is set.
	ArchiveDir string
	// OutputDir is used for absolute ("N:"-rooted) entries always, and
	// for relative entries too when ForceOutputDir is set.
	OutputDir string
	ForceOutputDir bool
}

// Extract writes every entry of arch to disk under opts, and a manifest
// sidecar (bnd.json plus one "<entry>.json" per entry) so the archive can
// later be rebuilt byte-identically.
func Extract(arch *Archive, opts ExtractOptions) error {
	for i, e := range arch.Entries {
		targetDir := opts.ArchiveDir
		if opts.ForceOutputDir || IsAbsoluteEntry(e.RawPath) {
			targetDir = opts.OutputDir
		}

		targetPath := filepath.Join(targetDir, filepath.FromSlash(e.Path))
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return fmt.Errorf("%w: creating directories for entry %d: %v", archerr.ErrIoFailure, i, err)
		}

		finalPath, err := resolveConflict(targetPath)
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", archerr.ErrIoFailure, i, err)
		}

		if err := os.WriteFile(finalPath, e.Data, 0o644); err != nil { //nolint:gosec // G306: game archive content, not sensitive
			return fmt.Errorf("%w: writing entry %d to %s: %v", archerr.ErrIoFailure, i, finalPath, err)
		}

		if err := manifest.SaveEntryInfo(finalPath, manifest.EntryInfo{
			Ident: int(e.Ident),
			Path:  e.RawPath,
		}); err != nil {
			return fmt.Errorf("%w: writing sidecar for entry %d: %v", archerr.ErrIoFailure, i, err)
		}
	}

	manifestDir := opts.OutputDir
	if manifestDir == "" {
		manifestDir = opts.ArchiveDir
	}
	if err := manifest.SaveBndInfo(manifestDir, manifest.BndInfo{Magic: arch.Magic, Flags: arch.Flags}); err != nil {
		return fmt.Errorf("%w: writing bnd.json: %v", archerr.ErrIoFailure, err)
	}

	return nil
}

// resolveConflict returns path unchanged if nothing exists there yet;
// otherwise it renames the existing file to "<path>.old_<n>" for the
// lowest non-colliding n and returns path, so the new write lands at the
// original location while the previous occupant is preserved alongside it.
func resolveConflict(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}

	for n := 0; ; n++ {
		candidate := fmt.Sprintf("%s.old_%d", path, n)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			if err := os.Rename(path, candidate); err != nil {
				return "", fmt.Errorf("%w: renaming existing %s to %s: %v", archerr.ErrExtractionConflict, path, candidate, err)
			}
			return path, nil
		}
	}
}
