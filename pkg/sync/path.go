package sync

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/sidkik/drivesync/pkg/remote"
)

// DefaultMaxNameLength is the default cap on the length of a local path
// segment, counted in runes.
const DefaultMaxNameLength = 50

// invalidNameChars are removed from remote names before they're used as local
// path segments.
const invalidNameChars = `<>:"/\|?*`

// SanitizeName makes a remote name safe to use as a single path segment. It
// removes reserved and control characters and truncates the result to `max`
// runes. A non-positive `max` disables truncation.
func SanitizeName(name string, max int) string {
	var b strings.Builder
	count := 0
	for _, r := range name {
		if r == utf8.RuneError || r < 0x20 || r == 0x7f || strings.ContainsRune(invalidNameChars, r) {
			continue
		}
		if max > 0 && count == max {
			break
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

// localName returns the path segment used for `entry`. Names that sanitize to
// nothing, or to a relative path element, fall back to the entry's id so that
// no path can leave the destination root.
func localName(entry remote.Entry, max int) string {
	name := SanitizeName(entry.Name, max)
	if isSafeSegment(name) {
		return name
	}

	name = SanitizeName(entry.ID, max)
	if isSafeSegment(name) {
		return name
	}
	return "_"
}

func isSafeSegment(name string) bool {
	return name != "" && name != "." && name != ".."
}

// An Item is a remote entry together with its path relative to the
// destination root.
type Item struct {
	Entry remote.Entry

	// RelPath is the sanitized names of the entry's ancestors and the entry
	// itself, joined with the OS path separator.
	RelPath string
}

// LocalPath returns where `item` is stored under `destination`. Composite
// entries get the extension of their export format appended.
func LocalPath(destination string, item Item, exports ExportTable) string {
	path := filepath.Join(destination, item.RelPath)
	if item.Entry.Kind != remote.KindFile || !item.Entry.Composite {
		return path
	}

	format, ok := exports.Lookup(item.Entry.MimeType)
	if !ok || format.Extension == "" {
		return path
	}
	if strings.HasSuffix(strings.ToLower(path), strings.ToLower(format.Extension)) {
		return path
	}
	return path + format.Extension
}
