package fatdisk

import (
	"path"
	"strings"
)

// AbsPath resolves p against the working directory wd.
// ".", ".." and duplicate slashes are removed, ".." of the root stays the root.
func AbsPath(wd, p string) string {
	if !path.IsAbs(p) {
		p = path.Join("/", wd, p)
	}
	return path.Clean(p)
}

// splitPath returns the segments of an absolute, clean path. The root has none.
func splitPath(p string) []string {
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s = strings.TrimSpace(s); s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// splitName separates a name into the 8.3 base and extension.
// Everything after a second dot is dropped.
func splitName(name string) (base, ext string) {
	parts := strings.Split(name, ".")
	base = parts[0]
	if len(parts) > 1 {
		ext = parts[1]
	}
	return base, ext
}

// lookupName is the name an entry created as name is listed under.
// Names get truncated to 8.3 on creation, so lookups have to do the same.
func lookupName(name string) string {
	if name == "." || name == ".." {
		return name
	}
	base, ext := splitName(name)
	return NewDirectoryEntry(base, ext, 0, 0, 0).DisplayName()
}
