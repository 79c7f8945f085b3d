// Command dksarc extracts and rebuilds the external composed, standalone,
// and compressed package archive formats described by the dksarc toolchain.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/dece/dksarc/internal/archerr"
	"github.com/dece/dksarc/internal/extarchive"
	"github.com/dece/dksarc/internal/filelist"
	"github.com/dece/dksarc/internal/orchestrator"
	"github.com/dece/dksarc/internal/progress"
	"github.com/dece/dksarc/internal/report"
	"github.com/dece/dksarc/internal/termcolor"
)

// numberedArchiveCount is the dvdbnd0..3 convention the numbered external
// archives are named under.
const numberedArchiveCount = 4

var version = "dev"

func main() {
	initLogger()

	exportHeader := flag.String("e", "", "Export a single external archive pair given the header path")
	exportDir := flag.String("E", "", "Export all four numbered external archive pairs found in this directory")
	filelistPath := flag.String("l", "", "Override the filelist used for key→name resolution")
	importDir := flag.String("i", "", "Rebuild a single external archive from this previously-exported directory")
	importDataDir := flag.String("I", "", "Rebuild all four numbered external archives from subdirectories 0..3 of this directory")
	rebuildStandaloneDir := flag.String("b", "", "Rebuild a standalone archive from this previously-extracted directory")
	outputDir := flag.String("o", "", "Output directory (required)")
	decompress := flag.Bool("decompress", false, "Inflate .dcx entries while exporting")
	cascade := flag.Bool("cascade", false, "Run the full cascading extraction driver instead of a flat export (only valid with -E)")
	reportPath := flag.String("report", "", "Write an HTML extraction report to this path")
	colorFlag := flag.String("color", "auto", "Color output: auto, always, never")
	noColor := flag.Bool("no-color", false, "Disable color output")
	showVersion := flag.Bool("version", false, "Show version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Printf("dksarc %s\n", version)
		os.Exit(0)
	}

	colorMode := termcolor.ColorAuto
	if *noColor {
		colorMode = termcolor.ColorNever
	} else if *colorFlag != "auto" {
		var err error
		colorMode, err = termcolor.ParseColorMode(*colorFlag)
		if err != nil {
			slog.Error("invalid color flag", "value", *colorFlag, "err", err)
			os.Exit(1)
		}
	}
	cw := termcolor.NewWriter(os.Stdout, colorMode)

	if *outputDir == "" {
		fmt.Fprintf(os.Stderr, "%s -o <path> is required\n", cw.Red("error:"))
		os.Exit(1)
	}

	start := time.Now()
	var stats orchestrator.Stats

	switch {
	case *exportHeader != "":
		stats = runExportSingle(cw, *exportHeader, *filelistPath, *outputDir, *decompress)
	case *exportDir != "":
		if *cascade {
			stats = runCascade(cw, *exportDir, *filelistPath, *outputDir)
		} else {
			stats = runExportNumbered(cw, *exportDir, *filelistPath, *outputDir, *decompress)
		}
	case *importDir != "":
		stats = runImportSingle(cw, *importDir, *outputDir)
	case *importDataDir != "":
		stats = runImportNumbered(cw, *importDataDir, *outputDir)
	case *rebuildStandaloneDir != "":
		stats = runRebuildStandalone(cw, *rebuildStandaloneDir, *outputDir)
	default:
		fmt.Fprintf(os.Stderr, "%s one of -e, -E, -i, -I, -b is required\n", cw.Red("error:"))
		os.Exit(1)
	}

	printSummary(cw, stats)

	if *reportPath != "" {
		r := report.ExtractionReport{OutputDir: *outputDir, StartedAt: start, Duration: time.Since(start), Stats: stats}
		html, err := report.RenderHTML(r)
		if err != nil {
			slog.Error("rendering report failed", "err", err)
		} else if err := os.WriteFile(*reportPath, []byte(html), 0o644); err != nil { //nolint:gosec // G306: report, not sensitive
			slog.Error("writing report failed", "path", *reportPath, "err", err)
		}
	}

	// Exit code 0 on completion regardless of per-file errors logged above;
	// a non-zero exit is reserved for argument parsing errors.
}

func runExportSingle(cw *termcolor.Writer, headerPath, filelistPath, outputDir string, decompress bool) orchestrator.Stats {
	payloadPath := derivePayloadPath(headerPath)
	list := resolveFilelist(filelistPath, filepath.Dir(headerPath), -1)

	spin := progress.New(fmt.Sprintf("Exporting %s...", filepath.Base(headerPath)))
	spin.Start()
	arch, err := extarchive.Open(headerPath, payloadPath)
	if err != nil {
		spin.Stop()
		fail(cw, err)
	}
	defer func() { _ = arch.Close() }()

	exportStats, err := extarchive.Export(arch, outputDir, list, decompress)
	spin.Stop()
	if err != nil {
		fail(cw, err)
	}
	return orchestrator.Stats{ExternalFilesExported: exportStats.FilesWritten, Errors: exportStats.Errors, PackagesDecompressed: exportStats.Decompressed}
}

func runExportNumbered(cw *termcolor.Writer, dir, filelistPath, outputDir string, decompress bool) orchestrator.Stats {
	var total orchestrator.Stats
	for k := 0; k < numberedArchiveCount; k++ {
		headerPath := filepath.Join(dir, fmt.Sprintf("%d.bhd5", k))
		if _, err := os.Stat(headerPath); err != nil {
			continue
		}
		payloadPath := derivePayloadPath(headerPath)
		list := resolveFilelist(filelistPath, dir, k)

		arch, err := extarchive.Open(headerPath, payloadPath)
		if err != nil {
			slog.Warn("skipping numbered archive", "index", k, "err", err)
			total.Errors++
			continue
		}
		exportStats, err := extarchive.Export(arch, outputDir, list, decompress)
		_ = arch.Close()
		if err != nil {
			slog.Warn("numbered archive export failed", "index", k, "err", err)
			total.Errors++
			continue
		}
		total.ExternalFilesExported += exportStats.FilesWritten
		total.PackagesDecompressed += exportStats.Decompressed
		total.Errors += exportStats.Errors
	}
	_ = cw
	return total
}

func runCascade(cw *termcolor.Writer, externalDir, filelistPath, outputDir string) orchestrator.Stats {
	spin := progress.New("Running cascading extraction...")
	spin.Start()
	resolver := orchestrator.DefaultFilelistResolver(externalDir)
	if filelistPath != "" {
		resolver = func(int) string { return filelistPath }
	}
	stats, err := orchestrator.Run(orchestrator.ExtractOptions{
		ExternalDir: externalDir,
		OutputDir:   outputDir,
		Filelist:    resolver,
		OnPhase:     spin.UpdateText,
	})
	spin.Stop()
	if err != nil {
		fail(cw, err)
	}
	return stats
}

func runImportSingle(cw *termcolor.Writer, dataDir, outputDir string) orchestrator.Stats {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		fail(cw, err)
	}
	payloadPath := filepath.Join(outputDir, "archive.bdt")
	headerPath := filepath.Join(outputDir, "archive.bhd5")

	spin := progress.New("Rebuilding archive...")
	spin.Start()
	arch, importStats, err := extarchive.Import(dataDir, payloadPath)
	spin.Stop()
	if err != nil {
		fail(cw, err)
	}
	defer func() { _ = arch.Payload.Close() }()

	hf, err := os.Create(headerPath) //nolint:gosec // G304: outputDir is caller-controlled
	if err != nil {
		fail(cw, err)
	}
	defer func() { _ = hf.Close() }()
	if err := arch.Header.Save(hf); err != nil {
		fail(cw, err)
	}

	return orchestrator.Stats{ExternalFilesExported: importStats.FilesAppended, Errors: importStats.Errors}
}

func runImportNumbered(cw *termcolor.Writer, dataDir, outputDir string) orchestrator.Stats {
	spin := progress.New("Rebuilding numbered archives...")
	spin.Start()
	stats, err := orchestrator.Reimport(orchestrator.ReimportOptions{DataDir: dataDir, OutputDir: outputDir})
	spin.Stop()
	if err != nil {
		fail(cw, err)
	}
	return stats
}

func runRebuildStandalone(cw *termcolor.Writer, dataDir, outputDir string) orchestrator.Stats {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		fail(cw, err)
	}
	outputPath := filepath.Join(outputDir, "archive.bnd")

	spin := progress.New("Rebuilding standalone archive...")
	spin.Start()
	stats, err := orchestrator.RebuildStandalone(orchestrator.RebuildStandaloneOptions{DataDir: dataDir, OutputPath: outputPath})
	spin.Stop()
	if err != nil {
		fail(cw, err)
	}
	return stats
}

// derivePayloadPath substitutes a header's extension to find its paired
// payload file: ".bhd5" -> ".bdt" for the dvdbnd convention.
func derivePayloadPath(headerPath string) string {
	stem := strings.TrimSuffix(headerPath, filepath.Ext(headerPath))
	return stem + ".bdt"
}

// resolveFilelist loads an explicit override if given, otherwise applies
// the default resolution rule for a numbered archive index (or no default
// at all for a single -e export, where index is -1).
func resolveFilelist(override, resourcesDir string, index int) *filelist.List {
	if override != "" {
		list, err := filelist.Load(override)
		if err != nil {
			slog.Warn("proceeding without filelist", "path", override, "err", err)
			return filelist.Empty()
		}
		return list
	}
	if index < 0 {
		return filelist.Empty()
	}
	defaultPath := orchestrator.DefaultFilelistResolver(resourcesDir)(index)
	list, err := filelist.Load(defaultPath)
	if err != nil {
		return filelist.Empty()
	}
	return list
}

func printSummary(cw *termcolor.Writer, stats orchestrator.Stats) {
	rows := pterm.TableData{
		{"metric", "count"},
		{"files exported/appended", fmt.Sprintf("%d", stats.ExternalFilesExported)},
		{"packages decompressed", fmt.Sprintf("%d", stats.PackagesDecompressed)},
		{"standalone archives unpacked", fmt.Sprintf("%d", stats.StandaloneUnpacked)},
		{"standalone archives rebuilt", fmt.Sprintf("%d", stats.StandaloneRebuilt)},
		{"composed archives unpacked", fmt.Sprintf("%d", stats.ComposedUnpacked)},
		{"errors (logged, non-fatal)", cw.Magenta(fmt.Sprintf("%d", stats.Errors))},
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

// fail reports an error that stops the run and exits. The exit code stays 0:
// a non-zero exit is reserved for argument parsing errors.
func fail(cw *termcolor.Writer, err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", cw.Red("error:"), err)
	if strings.Contains(err.Error(), archerr.ErrManifestMissing.Error()) {
		fmt.Fprintln(os.Stderr, "hint: reimport requires a directory previously extracted by this tool")
	}
	os.Exit(0)
}

// initLogger reads DKSARC_LOG_LEVEL and DKSARC_LOG_FORMAT from the
// environment, constructs the appropriate slog.Handler, and installs it as
// the default logger via slog.SetDefault.
func initLogger() {
	level := slog.LevelInfo
	switch getEnv("DKSARC_LOG_LEVEL", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if getEnv("DKSARC_LOG_FORMAT", "text") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
