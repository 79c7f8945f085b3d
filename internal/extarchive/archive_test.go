package extarchive

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/dece/dksarc/internal/filelist"
	"github.com/dece/dksarc/internal/pathkey"
)

func writeTestFilelist(t *testing.T, dir string, entries map[pathkey.Key]string) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("{")
	first := true
	for key, path := range entries {
		if !first {
			buf.WriteString(",")
		}
		first = false
		buf.WriteString(`"` + key.String() + `":"` + path + `"`)
	}
	buf.WriteString("}")
	path := filepath.Join(dir, "filelist.json")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func buildTestArchive(t *testing.T, headerPath, payloadPath string, files map[string][]byte) map[string]pathkey.Key {
	t.Helper()

	payload, err := CreatePayload(payloadPath)
	if err != nil {
		t.Fatalf("CreatePayload: %v", err)
	}
	defer func() { _ = payload.Close() }()

	header := &Header{}
	ri := header.AppendRecord()

	keys := make(map[string]pathkey.Key, len(files))
	// Iterate deterministically: callers pass small maps in tests.
	order := make([]string, 0, len(files))
	for name := range files {
		order = append(order, name)
	}
	sort.Strings(order)
	for _, virtualPath := range order {
		data := files[virtualPath]
		offset, n, err := payload.Append(data)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		key := pathkey.Hash(virtualPath)
		keys[virtualPath] = key
		if err := header.AppendEntry(ri, DataEntry{Key: key, Size: uint32(n), Offset: uint32(offset)}); err != nil {
			t.Fatalf("AppendEntry: %v", err)
		}
	}

	hf, err := os.Create(headerPath)
	if err != nil {
		t.Fatalf("creating header file: %v", err)
	}
	defer func() { _ = hf.Close() }()
	if err := header.Save(hf); err != nil {
		t.Fatalf("Header.Save: %v", err)
	}

	return keys
}

func TestExportImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	headerPath := filepath.Join(dir, "dvdbnd.bhd5")
	payloadPath := filepath.Join(dir, "dvdbnd.bdt")

	files := map[string][]byte{
		"/map/m10/m10_00_00_00.msb": []byte("map study binary"),
		"/chr/c0000.anibnd":         []byte("animation container"),
	}
	keys := buildTestArchive(t, headerPath, payloadPath, files)

	flEntries := make(map[pathkey.Key]string, len(keys))
	for path, key := range keys {
		flEntries[key] = path
	}
	flPath := writeTestFilelist(t, dir, flEntries)
	list, err := filelist.Load(flPath)
	if err != nil {
		t.Fatalf("filelist.Load: %v", err)
	}

	arch, err := Open(headerPath, payloadPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = arch.Close() }()

	outDir := filepath.Join(dir, "out")
	stats, err := Export(arch, outDir, list, false)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if stats.FilesWritten != 2 {
		t.Fatalf("FilesWritten = %d, want 2", stats.FilesWritten)
	}

	for virtualPath, want := range files {
		got, err := os.ReadFile(filepath.Join(outDir, filepath.FromSlash(virtualPath)))
		if err != nil {
			t.Fatalf("reading exported %s: %v", virtualPath, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("exported %s = %q, want %q", virtualPath, got, want)
		}
	}

	newPayloadPath := filepath.Join(dir, "rebuilt.bdt")
	newArch, importStats, err := Import(outDir, newPayloadPath)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	defer func() { _ = newArch.Payload.Close() }()
	if importStats.FilesAppended != 2 {
		t.Fatalf("FilesAppended = %d, want 2", importStats.FilesAppended)
	}
	if importStats.Errors != 0 {
		t.Fatalf("Errors = %d, want 0", importStats.Errors)
	}

	if newArch.Header.EntryCount() != 2 {
		t.Fatalf("rebuilt EntryCount = %d, want 2", newArch.Header.EntryCount())
	}

	// Every rebuilt entry must read back the original bytes under its key.
	byKey := make(map[pathkey.Key][]byte, len(files))
	for virtualPath, data := range files {
		byKey[pathkey.Hash(virtualPath)] = data
	}
	seen := 0
	for _, rec := range newArch.Header.Records {
		for _, e := range rec.Entries {
			want, ok := byKey[e.Key]
			if !ok {
				t.Errorf("rebuilt entry has unexpected key %s", e.Key.String())
				continue
			}
			got, err := newArch.Payload.ReadAt(int64(e.Offset), int64(e.Size))
			if err != nil {
				t.Fatalf("reading rebuilt entry: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Errorf("rebuilt entry %s data = %q, want %q", e.Key.String(), got, want)
			}
			seen++
		}
	}
	if seen != 2 {
		t.Errorf("saw %d rebuilt entries, want 2", seen)
	}
}

func TestRecordPartitionCounts(t *testing.T) {
	dir := t.TempDir()
	headerPath := filepath.Join(dir, "dvdbnd.bhd5")
	payloadPath := filepath.Join(dir, "dvdbnd.bdt")

	files := map[string][]byte{
		"/a.txt": []byte("a"),
		"/b.txt": []byte("bb"),
		"/c.txt": []byte("ccc"),
	}
	buildTestArchive(t, headerPath, payloadPath, files)

	arch, err := Open(headerPath, payloadPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = arch.Close() }()

	counts := RecordPartitionCounts(arch.Header)
	if len(counts) != len(files) {
		t.Fatalf("got %d distinct keys, want %d", len(counts), len(files))
	}
	for key, count := range counts {
		if count != 1 {
			t.Errorf("key %s claimed by %d records, want exactly 1", key.String(), count)
		}
	}
}

func TestExportUnknownKeyFallsBackToHexName(t *testing.T) {
	dir := t.TempDir()
	headerPath := filepath.Join(dir, "dvdbnd.bhd5")
	payloadPath := filepath.Join(dir, "dvdbnd.bdt")

	payload, err := CreatePayload(payloadPath)
	if err != nil {
		t.Fatalf("CreatePayload: %v", err)
	}
	data := []byte("BND3" + "rest of a standalone archive body")
	offset, n, err := payload.Append(data)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	_ = payload.Close()

	header := &Header{}
	ri := header.AppendRecord()
	key := pathkey.Key(0xDEADBEEF)
	if err := header.AppendEntry(ri, DataEntry{Key: key, Size: uint32(n), Offset: uint32(offset)}); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	hf, err := os.Create(headerPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := header.Save(hf); err != nil {
		t.Fatal(err)
	}
	_ = hf.Close()

	arch, err := Open(headerPath, payloadPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = arch.Close() }()

	outDir := filepath.Join(dir, "out")
	if _, err := Export(arch, outDir, filelist.Empty(), false); err != nil {
		t.Fatalf("Export: %v", err)
	}

	want := filepath.Join(outDir, "file_DEADBEEF.bnd")
	got, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("expected fallback-named file at %s: %v", want, err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("fallback file data = %q, want %q", got, data)
	}
}

func TestImportMissingRecordsManifestFails(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := Import(dir, filepath.Join(dir, "out.bdt")); err == nil {
		t.Fatal("expected Import to fail without records.json")
	}
}

func TestExportAlignmentMatchesPayload(t *testing.T) {
	dir := t.TempDir()
	headerPath := filepath.Join(dir, "dvdbnd.bhd5")
	payloadPath := filepath.Join(dir, "dvdbnd.bdt")

	files := map[string][]byte{
		"/odd.txt": []byte("not sixteen bytes long"),
	}
	buildTestArchive(t, headerPath, payloadPath, files)

	arch, err := Open(headerPath, payloadPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = arch.Close() }()

	for _, rec := range arch.Header.Records {
		for _, e := range rec.Entries {
			if e.Offset%16 != 0 {
				t.Errorf("entry offset %d is not 16-byte aligned", e.Offset)
			}
		}
	}
}
