package fatdisk

import (
	"fmt"
	"os"
	"strings"

	"github.com/aligator/fatdisk/checkpoint"
)

// Directory is the decoded content of a directory chain.
// Changes are only staged and get applied by Bytes, which is also the moment they become visible in Entries.
type Directory struct {
	entries []DirectoryEntry

	selfCluster   uint32
	parentCluster uint32

	deleted   map[string]struct{}
	appended  []DirectoryEntry
	relocated uint32
}

// NewDirectory creates an empty directory containing only "." and "..".
// The root directory uses its own cluster as parent.
func NewDirectory(selfCluster, parentCluster uint32) *Directory {
	d, _ := newDirectory([]DirectoryEntry{
		NewDirEntry(".", selfCluster),
		NewDirEntry("..", parentCluster),
	})
	return d
}

// ParseDirectory decodes a directory block. Decoding ends at the first slot starting with zero bytes.
func ParseDirectory(b []byte) (*Directory, error) {
	var entries []DirectoryEntry
	for start := 0; start+entrySize <= len(b); start += entrySize {
		slot := b[start : start+entrySize]
		if slot[0] == 0 && slot[1] == 0 && slot[2] == 0 {
			break
		}
		entries = append(entries, parseEntry(slot))
	}

	return newDirectory(entries)
}

func newDirectory(entries []DirectoryEntry) (*Directory, error) {
	d := &Directory{
		entries: entries,
		deleted: map[string]struct{}{},
	}

	selfFound := false
	for _, e := range entries {
		switch {
		case e.IsSelf():
			if selfFound {
				return nil, checkpoint.Newf(ErrValidation, "directory has more than one \".\" entry")
			}
			selfFound = true
			d.selfCluster = e.Cluster()
		case e.IsParent():
			d.parentCluster = e.Cluster()
		}
	}

	if !selfFound {
		return nil, checkpoint.Newf(ErrValidation, "directory has no \".\" entry")
	}
	return d, nil
}

// SelfCluster is the first cluster of this directory.
func (d *Directory) SelfCluster() uint32 { return d.selfCluster }

// ParentCluster is the first cluster of the parent directory.
func (d *Directory) ParentCluster() uint32 { return d.parentCluster }

// IsRoot reports if the directory is its own parent which is only true for the root.
func (d *Directory) IsRoot() bool {
	return d.selfCluster == d.parentCluster
}

// Entries returns all current entries including "." and "..".
func (d *Directory) Entries() []DirectoryEntry {
	result := make([]DirectoryEntry, len(d.entries))
	copy(result, d.entries)
	return result
}

// Children returns the current entries without "." and "..".
func (d *Directory) Children() []DirectoryEntry {
	result := make([]DirectoryEntry, 0, len(d.entries))
	for _, e := range d.entries {
		if !e.IsSelf() && !e.IsParent() {
			result = append(result, e)
		}
	}
	return result
}

// Self returns the "." entry.
func (d *Directory) Self() DirectoryEntry {
	for _, e := range d.entries {
		if e.IsSelf() {
			return e
		}
	}
	// newDirectory guarantees a "." entry.
	panic("directory without \".\" entry")
}

// Lookup finds a current entry by its display name.
func (d *Directory) Lookup(name string) (DirectoryEntry, bool) {
	for _, e := range d.entries {
		if e.DisplayName() == name {
			return e, true
		}
	}
	return DirectoryEntry{}, false
}

// StageAppend queues a new entry. Its name must neither exist nor be queued already.
func (d *Directory) StageAppend(e DirectoryEntry) error {
	name := e.DisplayName()
	if _, ok := d.Lookup(name); ok {
		return checkpoint.Newf(ErrDuplicateName, "%q", name)
	}
	for _, a := range d.appended {
		if a.DisplayName() == name {
			return checkpoint.Newf(ErrDuplicateName, "%q is already queued", name)
		}
	}

	d.appended = append(d.appended, e)
	return nil
}

// StageDelete marks the entry with the same name for removal.
func (d *Directory) StageDelete(e DirectoryEntry) {
	d.deleted[e.DisplayName()] = struct{}{}
}

// RelocateSelf lets the next Bytes call point "." to the given cluster.
func (d *Directory) RelocateSelf(cluster uint32) {
	d.relocated = cluster
}

// pending returns the entries Bytes would write.
func (d *Directory) pending() []DirectoryEntry {
	result := make([]DirectoryEntry, 0, len(d.entries)+len(d.appended))
	for _, list := range [][]DirectoryEntry{d.entries, d.appended} {
		for _, e := range list {
			if _, ok := d.deleted[e.DisplayName()]; ok {
				continue
			}
			if e.IsSelf() && d.relocated != 0 {
				e = e.withCluster(d.relocated)
			}
			result = append(result, e)
		}
	}
	return result
}

// EncodedSize is the length of the block Bytes will return.
func (d *Directory) EncodedSize() int {
	return len(d.pending()) * entrySize
}

// Bytes applies all staged changes and encodes the directory block.
func (d *Directory) Bytes() []byte {
	d.entries = d.pending()
	d.appended = nil
	d.deleted = map[string]struct{}{}
	if d.relocated != 0 {
		d.selfCluster = d.relocated
		d.relocated = 0
	}

	b := make([]byte, 0, len(d.entries)*entrySize)
	for _, e := range d.entries {
		b = append(b, e.bytes()...)
	}
	return b
}

// FileInfos returns the children as os.FileInfo.
func (d *Directory) FileInfos() []os.FileInfo {
	children := d.Children()
	result := make([]os.FileInfo, len(children))
	for i, e := range children {
		result[i] = e.FileInfo()
	}
	return result
}

func (d *Directory) String() string {
	var b strings.Builder
	for _, e := range d.entries {
		kind := ""
		if e.IsDir() {
			kind = "<DIR>"
		}
		fmt.Fprintf(&b, "%-12s %-5s %10d\n", e.DisplayName(), kind, e.Size())
	}
	return strings.TrimSuffix(b.String(), "\n")
}
