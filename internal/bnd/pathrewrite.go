package bnd

import "strings"

// absoluteRootFolder is the top-level folder absolute entries are remapped
// under in the extraction tree.
const absoluteRootFolder = "N"

// Rewrite converts a decoded archive path into a host-portable relative
// path: for an absolute path, only the two-character "N:" drive prefix is
// stripped (the rest of the virtual path, e.g. "FRPG\data\...", is kept),
// backslashes become forward slashes, and any leading separator is
// removed. An absolute path is then placed under the absoluteRootFolder
// subtree so Extract can always apply it relative to output_dir.
func Rewrite(raw string) string {
	path := raw
	wasAbsolute := strings.HasPrefix(path, "N:")

	if wasAbsolute {
		path = path[2:]
	}

	path = strings.ReplaceAll(path, `\`, "/")
	path = strings.TrimPrefix(path, "/")

	if wasAbsolute {
		path = absoluteRootFolder + "/" + path
	}

	return path
}

// IsAbsoluteEntry reports whether raw (the undecoded archive path) began
// with the "N:" virtual drive, which determines whether Extract resolves
// it under output_dir or beside the archive file.
func IsAbsoluteEntry(raw string) bool {
	return len(raw) >= 2 && raw[0] == 'N' && raw[1] == ':'
}
