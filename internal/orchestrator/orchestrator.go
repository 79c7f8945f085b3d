// Package orchestrator drives the cascading extraction pipeline: a fixed
// sequence of tree-wide passes that peels external archives, compressed
// packages, and nested standalone archives off a working directory until
// only raw game assets remain, plus the reverse path that rebuilds the
// four numbered external archives for reimport.
package orchestrator

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dece/dksarc/internal/archerr"
	"github.com/dece/dksarc/internal/bnd"
	"github.com/dece/dksarc/internal/dcx"
	"github.com/dece/dksarc/internal/extarchive"
	"github.com/dece/dksarc/internal/filelist"
	"github.com/dece/dksarc/internal/typeprobe"
)

// numberedArchiveCount is the fixed dvdbnd0..3 convention the numbered
// external archives are named and discovered under.
const numberedArchiveCount = 4

// interrootSubpath is where phase 1 lands the four external archives,
// matching the game's own virtual mount point.
var interrootSubpath = []string{"N", "FRPG", "data", "INTERROOT_win32"}

// FilelistResolver returns the filelist path to use for numbered archive k,
// or "" to extract with no filelist (hex-named fallback for every entry).
type FilelistResolver func(k int) string

// DefaultFilelistResolver implements the default resolution rule:
// "<resourcesDir>/dvdbnd{k}.hashmap.json".
func DefaultFilelistResolver(resourcesDir string) FilelistResolver {
	return func(k int) string {
		return filepath.Join(resourcesDir, fmt.Sprintf("dvdbnd%d.hashmap.json", k))
	}
}

// Stats aggregates counters across every phase of a Run, for CLI reporting.
type Stats struct {
	ExternalFilesExported int
	PackagesDecompressed  int
	StandaloneUnpacked    int
	StandaloneRebuilt     int
	ComposedUnpacked      int
	Errors                int
}

// ExtractOptions configures a full cascading extraction.
type ExtractOptions struct {
	// ExternalDir holds the four numbered external archive pairs
	// ("0.bhd5"/"0.bdt" .. "3.bhd5"/"3.bdt").
	ExternalDir string
	OutputDir   string
	Filelist    FilelistResolver

	// OnPhase, if set, is called with a short human-readable description
	// each time Run advances to the next phase, so a caller can relay
	// progress without Run importing a display package itself.
	OnPhase func(phase string)
}

func (opts ExtractOptions) reportPhase(phase string) {
	if opts.OnPhase != nil {
		opts.OnPhase(phase)
	}
}

// Run performs the fixed five-phase extraction against opts, logging and
// skipping per-file failures rather than aborting.
func Run(opts ExtractOptions) (Stats, error) {
	var stats Stats

	interroot := filepath.Join(append([]string{opts.OutputDir}, interrootSubpath...)...)

	// Phase 1: extract the four external archives.
	opts.reportPhase("Phase 1/5: extracting external archives...")
	for k := 0; k < numberedArchiveCount; k++ {
		headerPath := filepath.Join(opts.ExternalDir, fmt.Sprintf("%d.bhd5", k))
		payloadPath := filepath.Join(opts.ExternalDir, fmt.Sprintf("%d.bdt", k))
		if _, err := os.Stat(headerPath); err != nil {
			slog.Warn("skipping numbered archive: header not found", "index", k, "path", headerPath)
			continue
		}

		list := filelist.Empty()
		if opts.Filelist != nil {
			if flPath := opts.Filelist(k); flPath != "" {
				loaded, err := filelist.Load(flPath)
				if err != nil {
					slog.Warn("proceeding without filelist", "index", k, "err", err)
				} else {
					list = loaded
				}
			}
		}

		arch, err := extarchive.Open(headerPath, payloadPath)
		if err != nil {
			slog.Warn("skipping numbered archive: open failed", "index", k, "err", err)
			stats.Errors++
			continue
		}
		exportStats, err := extarchive.Export(arch, interroot, list, true)
		_ = arch.Close()
		if err != nil {
			slog.Warn("numbered archive export failed", "index", k, "err", err)
			stats.Errors++
			continue
		}
		stats.ExternalFilesExported += exportStats.FilesWritten
		stats.Errors += exportStats.Errors
	}

	// Phase 2: decompress every compressed package.
	opts.reportPhase("Phase 2/5: decompressing packages...")
	n, err := decompressTree(interroot)
	stats.PackagesDecompressed += n
	if err != nil {
		stats.Errors++
	}

	// Phase 3: unpack standalone archives, twice (one nesting level).
	opts.reportPhase("Phase 3/5: unpacking standalone archives...")
	for pass := 0; pass < 2; pass++ {
		n, err := unpackStandaloneTree(interroot)
		stats.StandaloneUnpacked += n
		if err != nil {
			stats.Errors++
		}
	}

	// Phase 4: unpack internal composed (external-format) archive pairs
	// found beside each other in the tree.
	opts.reportPhase("Phase 4/5: unpacking composed archives...")
	n, err = unpackComposedTree(interroot)
	stats.ComposedUnpacked += n
	if err != nil {
		stats.Errors++
	}

	// Phase 5: decompress again — unpacking standalone/composed archives
	// commonly reveals further .dcx files.
	opts.reportPhase("Phase 5/5: decompressing revealed packages...")
	n, err = decompressTree(interroot)
	stats.PackagesDecompressed += n
	if err != nil {
		stats.Errors++
	}

	return stats, nil
}

// decompressTree walks root once, inflating every *.dcx file in place and
// deleting the compressed original. A file whose stripped name has no
// extension is given one by probing the inflated bytes.
func decompressTree(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("decompress pass: walk error", "path", path, "err", err)
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".dcx") {
			return nil
		}

		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from our own tree walk
		if err != nil {
			slog.Warn("skipping compressed file: read failed", "path", path, "err", err)
			return nil
		}
		inflated, err := dcx.Decode(data)
		if err != nil {
			slog.Warn("skipping compressed file: decode failed", "path", path, "err", err)
			return nil
		}

		target := strings.TrimSuffix(path, filepath.Ext(path))
		if filepath.Ext(target) == "" {
			target += "." + typeprobe.Probe(inflated)
		}
		if err := os.WriteFile(target, inflated, 0o644); err != nil { //nolint:gosec // G306: game asset content
			slog.Warn("skipping compressed file: write failed", "path", target, "err", err)
			return nil
		}
		if err := os.Remove(path); err != nil {
			slog.Warn("failed to remove compressed original", "path", path, "err", err)
		}
		count++
		return nil
	})
	return count, err
}

// unpackStandaloneTree walks root once, unpacking any file whose magic
// identifies it as a standalone archive (BND3/BND4) in place beside itself,
// then deleting the archive file.
func unpackStandaloneTree(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("standalone pass: walk error", "path", path, "err", err)
			return nil
		}
		if d.IsDir() {
			return nil
		}

		magic, err := readMagic(path)
		if err != nil || typeprobe.Label(magic) != "standalone-archive" {
			return nil
		}

		f, err := os.Open(path) //nolint:gosec // G304: path comes from our own tree walk
		if err != nil {
			slog.Warn("skipping standalone archive: open failed", "path", path, "err", err)
			return nil
		}
		arch, err := bnd.Load(f)
		_ = f.Close()
		if err != nil {
			slog.Warn("skipping standalone archive: parse failed", "path", path, "err", err)
			return nil
		}

		dir := filepath.Dir(path)
		if err := bnd.Extract(arch, bnd.ExtractOptions{ArchiveDir: dir, OutputDir: dir}); err != nil {
			slog.Warn("skipping standalone archive: extract failed", "path", path, "err", err)
			return nil
		}
		if err := os.Remove(path); err != nil {
			slog.Warn("failed to remove unpacked standalone archive", "path", path, "err", err)
		}
		count++
		return nil
	})
	return count, err
}

// unpackComposedTree walks root once looking for internal composed
// (BHD5-format) header files, pairs each with its sibling payload, exports
// it beside itself, then deletes the pair. The ".chrtpfbdt" case is
// special: the header lives in a subdirectory named after the payload's
// stem rather than right beside it.
func unpackComposedTree(root string) (int, error) {
	count := 0

	// First locate every payload with the special .chrtpfbdt extension and
	// resolve its header explicitly, since the generic bhd-sibling walk
	// below would never find it (the header isn't in the same directory).
	specialPairs := map[string]string{} // payloadPath -> headerPath
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".chrtpfbdt") {
			return nil
		}
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		headerPath := filepath.Join(filepath.Dir(path), stem, stem+".tpfbhd")
		specialPairs[path] = headerPath
		return nil
	})
	if err != nil {
		return count, err
	}
	for payloadPath, headerPath := range specialPairs {
		if exportComposedPair(headerPath, payloadPath) {
			count++
		}
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("composed pass: walk error", "path", path, "err", err)
			return nil
		}
		if d.IsDir() || strings.EqualFold(filepath.Ext(path), ".chrtpfbdt") {
			return nil
		}

		magic, err := readMagic(path)
		if err != nil || typeprobe.Label(magic) != "external-header" {
			return nil
		}
		payloadPath := siblingPayloadPath(path)
		if payloadPath == "" {
			return nil
		}
		if _, err := os.Stat(payloadPath); err != nil {
			return nil
		}
		if exportComposedPair(path, payloadPath) {
			count++
		}
		return nil
	})
	return count, err
}

// siblingPayloadPath derives an internal composed archive's payload path
// from its header path by swapping a trailing "bhd" extension suffix for
// "bdt" (e.g. ".tpfbhd" -> ".tpfbdt", ".chrbhd" -> ".chrbdt").
func siblingPayloadPath(headerPath string) string {
	ext := filepath.Ext(headerPath)
	if !strings.HasSuffix(strings.ToLower(ext), "bhd") {
		return ""
	}
	return strings.TrimSuffix(headerPath, "bhd") + "bdt"
}

func exportComposedPair(headerPath, payloadPath string) bool {
	arch, err := extarchive.Open(headerPath, payloadPath)
	if err != nil {
		slog.Warn("skipping composed archive: open failed", "header", headerPath, "err", err)
		return false
	}
	defer func() { _ = arch.Close() }()

	if _, err := extarchive.Export(arch, filepath.Dir(headerPath), filelist.Empty(), true); err != nil {
		slog.Warn("skipping composed archive: export failed", "header", headerPath, "err", err)
		return false
	}
	if err := os.Remove(headerPath); err != nil {
		slog.Warn("failed to remove unpacked composed header", "path", headerPath, "err", err)
	}
	if err := os.Remove(payloadPath); err != nil {
		slog.Warn("failed to remove unpacked composed payload", "path", payloadPath, "err", err)
	}
	return true
}

func readMagic(path string) ([]byte, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from our own tree walk
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	buf := make([]byte, 4)
	if _, err := f.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReimportOptions configures rebuilding the four numbered external
// archives from a previously-exported tree (CLI flag `-I`).
type ReimportOptions struct {
	// DataDir contains four subdirectories "0".."3", each a tree exported
	// by Run/Export with its records.json (and optionally decompressed.json)
	// sidecars.
	DataDir   string
	OutputDir string
}

// Reimport rebuilds the four numbered external archives, writing
// "<k>.bhd5"/"<k>.bdt" into opts.OutputDir. A numbered subdirectory missing
// records.json is logged and skipped; Reimport itself only fails if
// opts.OutputDir can't be created.
func Reimport(opts ReimportOptions) (Stats, error) {
	var stats Stats

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return stats, fmt.Errorf("%w: creating %s: %v", archerr.ErrIoFailure, opts.OutputDir, err)
	}

	for k := 0; k < numberedArchiveCount; k++ {
		subdir := filepath.Join(opts.DataDir, strconv.Itoa(k))
		if _, err := os.Stat(subdir); err != nil {
			slog.Warn("skipping numbered archive: subdirectory not found", "index", k, "path", subdir)
			continue
		}

		payloadPath := filepath.Join(opts.OutputDir, fmt.Sprintf("%d.bdt", k))
		arch, importStats, err := extarchive.Import(subdir, payloadPath)
		if err != nil {
			slog.Warn("numbered archive reimport failed", "index", k, "err", err)
			stats.Errors++
			continue
		}
		stats.ExternalFilesExported += importStats.FilesAppended
		stats.Errors += importStats.Errors

		headerPath := filepath.Join(opts.OutputDir, fmt.Sprintf("%d.bhd5", k))
		hf, err := os.Create(headerPath) //nolint:gosec // G304: opts.OutputDir is caller-controlled
		if err != nil {
			_ = arch.Payload.Close()
			slog.Warn("numbered archive header write failed", "index", k, "err", err)
			stats.Errors++
			continue
		}
		saveErr := arch.Header.Save(hf)
		_ = hf.Close()
		_ = arch.Payload.Close()
		if saveErr != nil {
			slog.Warn("numbered archive header write failed", "index", k, "err", saveErr)
			stats.Errors++
		}
	}

	return stats, nil
}

// RebuildStandaloneOptions configures rebuilding a single standalone
// archive from a previously-extracted directory (CLI flag `-b`).
type RebuildStandaloneOptions struct {
	// DataDir is a tree previously written by bnd.Extract, carrying
	// bnd.json and one "<entry>.json" sidecar per extracted file.
	DataDir    string
	OutputPath string
}

// RebuildStandalone reads DataDir's sidecars, rebuilds the archive in its
// original entry order, and writes it to OutputPath.
func RebuildStandalone(opts RebuildStandaloneOptions) (Stats, error) {
	var stats Stats

	builder, err := bnd.Rebuild(opts.DataDir)
	if err != nil {
		return stats, err
	}

	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0o755); err != nil {
		return stats, fmt.Errorf("%w: creating %s: %v", archerr.ErrIoFailure, filepath.Dir(opts.OutputPath), err)
	}
	f, err := os.Create(opts.OutputPath) //nolint:gosec // G304: opts.OutputPath is caller-controlled
	if err != nil {
		return stats, fmt.Errorf("%w: creating %s: %v", archerr.ErrIoFailure, opts.OutputPath, err)
	}
	defer func() { _ = f.Close() }()

	if err := builder.Build(f); err != nil {
		return stats, err
	}
	stats.StandaloneRebuilt = 1
	return stats, nil
}
