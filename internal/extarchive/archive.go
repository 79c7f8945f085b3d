package extarchive

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dece/dksarc/internal/archerr"
	"github.com/dece/dksarc/internal/dcx"
	"github.com/dece/dksarc/internal/filelist"
	"github.com/dece/dksarc/internal/manifest"
	"github.com/dece/dksarc/internal/pathkey"
	"github.com/dece/dksarc/internal/typeprobe"
)

// Archive pairs a Header (the .bhd5 index) with a Payload (the .bdt bulk
// file) and provides the export/import surface for a full external archive
// pair.
type Archive struct {
	Header  *Header
	Payload *Payload
}

// Open loads an existing external archive pair for export.
func Open(headerPath, payloadPath string) (*Archive, error) {
	hf, err := os.Open(headerPath) //nolint:gosec // G304: path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("%w: opening header %s: %v", archerr.ErrIoFailure, headerPath, err)
	}
	defer func() { _ = hf.Close() }()

	header, err := LoadHeader(hf)
	if err != nil {
		return nil, err
	}

	payload, err := OpenPayload(payloadPath)
	if err != nil {
		return nil, err
	}

	return &Archive{Header: header, Payload: payload}, nil
}

// Close releases the payload file handle.
func (a *Archive) Close() error {
	if a.Payload == nil {
		return nil
	}
	return a.Payload.Close()
}

// ExportStats summarizes one Export call for CLI reporting.
type ExportStats struct {
	FilesWritten int
	BytesWritten int64
	Decompressed int
	Errors       int
}

// Export writes every entry of a to outputDir, and persists the sidecar
// manifests (records.json, and decompressed.json if decompress is set)
// needed to reimport losslessly. Per-entry read/write failures are logged
// and skipped; Export itself only fails if the manifests can't be written.
func Export(a *Archive, outputDir string, list *filelist.List, decompress bool) (ExportStats, error) {
	var stats ExportStats

	// expectedNames collects every relative path a filelist hit produces,
	// so the decompress step below can tell a genuinely free name apart
	// from one some other entry is already expected to occupy.
	expectedNames := make(map[string]bool)
	for _, rec := range a.Header.Records {
		for _, e := range rec.Entries {
			if p, ok := list.Resolve(e.Key); ok {
				expectedNames[p] = true
			}
		}
	}

	recordsMap := make(map[int][]string, len(a.Header.Records))
	var decompressedList []string

	for ri, rec := range a.Header.Records {
		var ownedPaths []string
		for _, e := range rec.Entries {
			data, err := a.Payload.ReadAt(int64(e.Offset), int64(e.Size))
			if err != nil {
				slog.Warn("skipping entry: short read from payload", "key", e.Key.String(), "err", err)
				stats.Errors++
				continue
			}

			relPath := resolveEntryName(e, list, data)

			targetPath := filepath.Join(outputDir, filepath.FromSlash(strings.TrimPrefix(relPath, "/")))
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				slog.Warn("skipping entry: cannot create directories", "path", relPath, "err", err)
				stats.Errors++
				continue
			}
			if err := os.WriteFile(targetPath, data, 0o644); err != nil { //nolint:gosec // G306: game archive content
				slog.Warn("skipping entry: write failed", "path", relPath, "err", err)
				stats.Errors++
				continue
			}
			stats.FilesWritten++
			stats.BytesWritten += int64(len(data))
			ownedPaths = append(ownedPaths, relPath)

			if decompress && strings.EqualFold(filepath.Ext(targetPath), ".dcx") {
				stripped := strings.TrimSuffix(relPath, filepath.Ext(relPath))
				if expectedNames[stripped] {
					// Conflicts with another entry's expected filelist
					// name; leave the .dcx file as extracted.
					continue
				}
				inflated, err := dcx.Decode(data)
				if err != nil {
					slog.Warn("leaving file compressed: decode failed", "path", relPath, "err", err)
					continue
				}
				if filepath.Ext(stripped) == "" {
					stripped += "." + typeprobe.Probe(inflated)
				}
				strippedTarget := filepath.Join(outputDir, filepath.FromSlash(strings.TrimPrefix(stripped, "/")))
				if err := os.WriteFile(strippedTarget, inflated, 0o644); err != nil { //nolint:gosec // G306
					slog.Warn("leaving file compressed: write failed", "path", stripped, "err", err)
					continue
				}
				if err := os.Remove(targetPath); err != nil {
					slog.Warn("failed to remove compressed original", "path", relPath, "err", err)
				}
				decompressedList = append(decompressedList, stripped)
				stats.Decompressed++
			}
		}
		recordsMap[ri] = ownedPaths
	}

	if err := manifest.SaveRecords(outputDir, recordsMap); err != nil {
		return stats, err
	}
	if decompress {
		if err := manifest.SaveDecompressed(outputDir, decompressedList); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// resolveEntryName resolves e's relative path via list. On a miss, it
// falls back to "file_<HEX>.<ext>", probing the entry's own bytes for the
// extension so the fallback name is at least browsable without a filelist.
func resolveEntryName(e DataEntry, list *filelist.List, data []byte) string {
	if p, ok := list.Resolve(e.Key); ok {
		return p
	}
	return fmt.Sprintf("file_%s.%s", e.Key.String(), typeprobe.Probe(data))
}

// ImportStats summarizes one Import call for CLI reporting.
type ImportStats struct {
	FilesAppended int
	Errors        int
}

// Import rebuilds an external archive from dataDir, guided by the
// records.json (required) and decompressed.json (optional) manifests
// written by a prior Export. The caller is responsible for calling
// Header.Save and closing the Payload on the returned Archive.
func Import(dataDir, payloadPath string) (*Archive, ImportStats, error) {
	var stats ImportStats

	recordsMap, err := manifest.LoadRecords(dataDir)
	if err != nil {
		return nil, stats, err
	}
	decompressedList, err := manifest.LoadDecompressed(dataDir)
	if err != nil {
		return nil, stats, err
	}
	decompressedSet := make(map[string]bool, len(decompressedList))
	for _, p := range decompressedList {
		decompressedSet[p] = true
	}

	// pathToRecord maps every relative path named in records.json back to
	// the record index that owns it, so a walked file can be placed
	// without an O(records) scan per file.
	pathToRecord := make(map[string]int)
	maxRecord := -1
	for idx, paths := range recordsMap {
		if idx > maxRecord {
			maxRecord = idx
		}
		for _, p := range paths {
			pathToRecord[p] = idx
		}
	}

	payload, err := CreatePayload(payloadPath)
	if err != nil {
		return nil, stats, err
	}

	header := &Header{Records: make([]Record, maxRecord+1)}

	walkErr := filepath.Walk(dataDir, func(path string, info os.FileInfo, walkFileErr error) error {
		if walkFileErr != nil {
			slog.Warn("skipping path: walk error", "path", path, "err", walkFileErr)
			stats.Errors++
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}

		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			slog.Warn("skipping file: cannot compute relative path", "path", path, "err", err)
			stats.Errors++
			return nil
		}
		rel = filepath.ToSlash(rel)

		hexStr, relPath, isUnnamed := classify(rel)
		readPath := path

		if decompressedSet[relPath] {
			raw, err := os.ReadFile(path) //nolint:gosec // G304: dataDir is caller-controlled
			if err != nil {
				slog.Warn("skipping file: read failed", "path", path, "err", err)
				stats.Errors++
				return nil
			}
			compressed, err := dcx.Encode(raw)
			if err != nil {
				slog.Warn("skipping file: compress failed", "path", path, "err", err)
				stats.Errors++
				return nil
			}
			sibling := path + ".dcx"
			if err := os.WriteFile(sibling, compressed, 0o644); err != nil { //nolint:gosec // G306
				slog.Warn("skipping file: writing compressed sibling failed", "path", sibling, "err", err)
				stats.Errors++
				return nil
			}
			readPath = sibling
			relPath += ".dcx"
		}

		var key pathkey.Key
		if isUnnamed {
			k, err := pathkey.ParseKey(hexStr)
			if err != nil {
				slog.Warn("skipping file: bad hex key in name", "path", path, "err", err)
				stats.Errors++
				return nil
			}
			key = k
		} else {
			key = pathkey.Hash(relPath)
		}

		data, err := os.ReadFile(readPath) //nolint:gosec // G304: dataDir is caller-controlled
		if err != nil {
			slog.Warn("skipping file: read failed", "path", readPath, "err", err)
			stats.Errors++
			return nil
		}

		offset, n, err := payload.Append(data)
		if err != nil {
			slog.Warn("skipping file: append failed", "path", readPath, "err", err)
			stats.Errors++
			return nil
		}

		recordIdx, ok := pathToRecord[relPath]
		if !ok {
			slog.Warn("skipping file: not listed in records.json", "path", relPath)
			stats.Errors++
			return nil
		}
		if err := header.AppendEntry(recordIdx, DataEntry{
			Key:    key,
			Size:   uint32(n),
			Offset: uint32(offset),
		}); err != nil {
			slog.Warn("skipping file: record append failed", "path", relPath, "err", err)
			stats.Errors++
			return nil
		}

		stats.FilesAppended++
		return nil
	})
	if walkErr != nil {
		_ = payload.Close()
		return nil, stats, fmt.Errorf("%w: walking %s: %v", archerr.ErrIoFailure, dataDir, walkErr)
	}

	return &Archive{Header: header, Payload: payload}, stats, nil
}

// classify determines whether rel names an "unnamed" entry — either the
// bare 8-hex-digit form, or the "file_<HEX>.<ext>" form Export actually
// writes — or a "named" one. hexStr is only meaningful when isUnnamed is
// true; relPath is the canonical key used to look the file up in
// records.json / decompressed.json.
func classify(rel string) (hexStr string, relPath string, isUnnamed bool) {
	base := filepath.Base(rel)
	if hex, ok := parseUnnamedFilename(base); ok {
		return hex, base, true
	}
	return "", "/" + rel, false
}

// parseUnnamedFilename recognizes both the bare 8-hex-digit form and the
// "file_<HEX>.<ext>" form as an unnamed entry, returning the 8-hex key
// string.
func parseUnnamedFilename(name string) (string, bool) {
	if pathkey.IsHexName(name) {
		return name, true
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if hex, ok := strings.CutPrefix(stem, "file_"); ok && pathkey.IsHexName(hex) {
		return hex, true
	}
	return "", false
}

// RecordPartitionCounts reports, for every entry key appearing in h, how
// many records claim it. A well-formed header has every count equal to 1;
// used by tests and by a future integrity-check CLI mode.
func RecordPartitionCounts(h *Header) map[pathkey.Key]int {
	counts := make(map[pathkey.Key]int)
	for _, rec := range h.Records {
		for _, e := range rec.Entries {
			counts[e.Key]++
		}
	}
	return counts
}
