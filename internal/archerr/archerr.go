// Package archerr defines the error taxonomy shared by every codec in this
// module. Each codec call returns one of these sentinels (wrapped with
// fmt.Errorf("...: %w", ...) for context) so callers can use errors.Is
// instead of matching on message text.
package archerr

import "errors"

var (
	// ErrInvalidMagic means header bytes disagree with the expected
	// signature. Fatal for the file being parsed.
	ErrInvalidMagic = errors.New("invalid magic")

	// ErrStructurallyInconsistent means offset/size fields point outside
	// the file, or record/entry counts do not add up. Fatal for the file
	// being parsed.
	ErrStructurallyInconsistent = errors.New("structurally inconsistent archive")

	// ErrIoFailure wraps an underlying read/write/open failure. Fatal for
	// the file being processed.
	ErrIoFailure = errors.New("io failure")

	// ErrCodecFailure means the deflate stream did not decode. Fatal for
	// the file being processed.
	ErrCodecFailure = errors.New("codec failure")

	// ErrNameResolutionMiss means a PathKey has no filelist entry. Never
	// returned to a caller as a hard error — it signals the non-fatal
	// hex-name fallback described in ExternalArchive.Export.
	ErrNameResolutionMiss = errors.New("name resolution miss")

	// ErrExtractionConflict means an existing extraction target could not
	// be renamed out of the way. An existing target by itself is not an
	// error: the extractor renames it to "<path>.old_<n>" and proceeds.
	ErrExtractionConflict = errors.New("extraction target conflict")

	// ErrManifestMissing means a required sidecar manifest is absent
	// during reimport. Fatal for the archive being rebuilt; the
	// orchestrator continues with other archives.
	ErrManifestMissing = errors.New("manifest missing")
)
