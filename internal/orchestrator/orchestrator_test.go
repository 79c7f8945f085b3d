package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dece/dksarc/internal/bnd"
	"github.com/dece/dksarc/internal/dcx"
	"github.com/dece/dksarc/internal/extarchive"
	"github.com/dece/dksarc/internal/filelist"
	"github.com/dece/dksarc/internal/pathkey"
)

// TestRunCascadingExtraction exercises a working directory containing one
// compressed standalone archive that itself contains one compressed file.
// After a full run, the inflated inner file must land at its virtual path
// with every intermediate .dcx/archive file gone.
func TestRunCascadingExtraction(t *testing.T) {
	dir := t.TempDir()
	externalDir := filepath.Join(dir, "external")
	outputDir := filepath.Join(dir, "output")
	if err := os.MkdirAll(externalDir, 0o755); err != nil {
		t.Fatal(err)
	}

	innerContent := []byte("sword data")
	innerDcx, err := dcx.Encode(innerContent)
	if err != nil {
		t.Fatalf("dcx.Encode inner: %v", err)
	}

	innerFile := filepath.Join(dir, "o0000.geom.dcx")
	if err := os.WriteFile(innerFile, innerDcx, 0o644); err != nil {
		t.Fatal(err)
	}

	builder := bnd.NewBuilder()
	builder.Add(innerFile, `obj\o0000\o0000.geom.dcx`)

	bndFile := filepath.Join(dir, "o0000.anibnd")
	bf, err := os.Create(bndFile)
	if err != nil {
		t.Fatal(err)
	}
	if err := builder.Build(bf); err != nil {
		t.Fatalf("Builder.Build: %v", err)
	}
	_ = bf.Close()

	bndBytes, err := os.ReadFile(bndFile)
	if err != nil {
		t.Fatal(err)
	}
	compressedBnd, err := dcx.Encode(bndBytes)
	if err != nil {
		t.Fatalf("dcx.Encode bnd: %v", err)
	}

	payloadPath := filepath.Join(externalDir, "0.bdt")
	payload, err := extarchive.CreatePayload(payloadPath)
	if err != nil {
		t.Fatalf("CreatePayload: %v", err)
	}
	offset, n, err := payload.Append(compressedBnd)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := payload.Close(); err != nil {
		t.Fatal(err)
	}

	virtualPath := "/obj/o0000.anibnd.dcx"
	key := pathkey.Hash(virtualPath)
	header := &extarchive.Header{}
	ri := header.AppendRecord()
	if err := header.AppendEntry(ri, extarchive.DataEntry{Key: key, Size: uint32(n), Offset: uint32(offset)}); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	headerPath := filepath.Join(externalDir, "0.bhd5")
	hf, err := os.Create(headerPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := header.Save(hf); err != nil {
		t.Fatal(err)
	}
	_ = hf.Close()

	flPath := filepath.Join(dir, "filelist0.json")
	if err := os.WriteFile(flPath, []byte(`{"`+key.String()+`":"`+virtualPath+`"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	stats, err := Run(ExtractOptions{
		ExternalDir: externalDir,
		OutputDir:   outputDir,
		Filelist: func(k int) string {
			if k == 0 {
				return flPath
			}
			return ""
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.ExternalFilesExported != 1 {
		t.Errorf("ExternalFilesExported = %d, want 1", stats.ExternalFilesExported)
	}
	if stats.StandaloneUnpacked != 1 {
		t.Errorf("StandaloneUnpacked = %d, want 1", stats.StandaloneUnpacked)
	}

	wantPath := filepath.Join(outputDir, "N", "FRPG", "data", "INTERROOT_win32", "obj", "obj", "o0000", "o0000.geom")
	got, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("expected inflated inner file at %s: %v", wantPath, err)
	}
	if string(got) != "sword data" {
		t.Errorf("inner file data = %q, want %q", got, "sword data")
	}

	anibndPath := filepath.Join(outputDir, "N", "FRPG", "data", "INTERROOT_win32", "obj", "o0000.anibnd")
	if _, err := os.Stat(anibndPath); !os.IsNotExist(err) {
		t.Errorf("expected intermediate archive %s to be removed, stat err = %v", anibndPath, err)
	}
	geomDcxPath := filepath.Join(filepath.Dir(wantPath), "o0000.geom.dcx")
	if _, err := os.Stat(geomDcxPath); !os.IsNotExist(err) {
		t.Errorf("expected intermediate compressed file %s to be removed, stat err = %v", geomDcxPath, err)
	}
}

func TestReimportRebuildsNumberedArchives(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	subdir0 := filepath.Join(dataDir, "0")
	if err := os.MkdirAll(subdir0, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(filepath.Join(subdir0, "a"), 0o755); err != nil {
		t.Fatal(err)
	}
	filePath := filepath.Join(subdir0, "a", "b.txt")
	if err := os.WriteFile(filePath, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	records := `{"0":["/a/b.txt"]}`
	if err := os.WriteFile(filepath.Join(subdir0, "records.json"), []byte(records), 0o644); err != nil {
		t.Fatal(err)
	}

	outputDir := filepath.Join(dir, "rebuilt")
	stats, err := Reimport(ReimportOptions{DataDir: dataDir, OutputDir: outputDir})
	if err != nil {
		t.Fatalf("Reimport: %v", err)
	}
	if stats.ExternalFilesExported != 1 {
		t.Errorf("ExternalFilesExported = %d, want 1", stats.ExternalFilesExported)
	}

	if _, err := os.Stat(filepath.Join(outputDir, "0.bhd5")); err != nil {
		t.Errorf("expected rebuilt header: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outputDir, "0.bdt")); err != nil {
		t.Errorf("expected rebuilt payload: %v", err)
	}

	arch, err := extarchive.Open(filepath.Join(outputDir, "0.bhd5"), filepath.Join(outputDir, "0.bdt"))
	if err != nil {
		t.Fatalf("Open rebuilt archive: %v", err)
	}
	defer func() { _ = arch.Close() }()

	if arch.Header.EntryCount() != 1 {
		t.Fatalf("EntryCount = %d, want 1", arch.Header.EntryCount())
	}
	e := arch.Header.Records[0].Entries[0]
	data, err := arch.Payload.ReadAt(int64(e.Offset), int64(e.Size))
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("rebuilt entry data = %q, want %q", data, "hello")
	}
	if e.Key != pathkey.Hash("/a/b.txt") {
		t.Errorf("rebuilt entry key = %s, want hash of /a/b.txt", e.Key.String())
	}

	_ = filelist.Empty() // silence unused import if filelist helpers aren't otherwise exercised here
}
