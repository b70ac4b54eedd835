package fatdisk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// AttrDirectory is the attribute bit which marks an entry as directory.
const AttrDirectory byte = 0x10

// DirectoryEntry is a single 8.3 record inside of a directory block.
type DirectoryEntry struct {
	record entryRecord
}

// NewDirectoryEntry pads name and extension with spaces.
// Names longer than 8 and extensions longer than 3 characters are cut off.
func NewDirectoryEntry(name, ext string, attribute byte, cluster, size uint32) DirectoryEntry {
	e := DirectoryEntry{record: entryRecord{
		Attribute:    attribute,
		FirstCluster: cluster,
		FileSize:     size,
	}}
	padASCII(e.record.Name[:], name)
	padASCII(e.record.Ext[:], ext)
	return e
}

// NewDirEntry creates the entry of a directory. Directories have no extension and size.
func NewDirEntry(name string, cluster uint32) DirectoryEntry {
	return NewDirectoryEntry(name, "", AttrDirectory, cluster, 0)
}

// NewFileEntry creates the entry of a regular file.
func NewFileEntry(name, ext string, cluster, size uint32) DirectoryEntry {
	return NewDirectoryEntry(name, ext, 0, cluster, size)
}

func padASCII(dst []byte, s string) {
	for i := range dst {
		dst[i] = ' '
	}

	i := 0
	for _, r := range s {
		if i >= len(dst) {
			return
		}
		if r > 0x7F {
			r = '?'
		}
		dst[i] = byte(r)
		i++
	}
}

func parseEntry(b []byte) DirectoryEntry {
	var e DirectoryEntry
	// b is always a full slot, so reading cannot fail.
	_ = binary.Read(bytes.NewReader(b[:entrySize]), binary.BigEndian, &e.record)
	return e
}

func (e DirectoryEntry) bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, entrySize))
	_ = binary.Write(buf, binary.BigEndian, e.record)
	return buf.Bytes()
}

// withCluster returns a copy pointing to another first cluster.
func (e DirectoryEntry) withCluster(cluster uint32) DirectoryEntry {
	e.record.FirstCluster = cluster
	return e
}

// Name is the trimmed name without extension.
func (e DirectoryEntry) Name() string {
	return strings.TrimSpace(string(e.record.Name[:]))
}

// Ext is the trimmed extension.
func (e DirectoryEntry) Ext() string {
	return strings.TrimSpace(string(e.record.Ext[:]))
}

func (e DirectoryEntry) Attribute() byte { return e.record.Attribute }
func (e DirectoryEntry) Cluster() uint32 { return e.record.FirstCluster }
func (e DirectoryEntry) Size() uint32    { return e.record.FileSize }

func (e DirectoryEntry) IsDir() bool {
	return e.record.Attribute&AttrDirectory == AttrDirectory
}

// IsSelf reports if this is the "." entry.
func (e DirectoryEntry) IsSelf() bool {
	return e.Name() == "."
}

// IsParent reports if this is the ".." entry.
func (e DirectoryEntry) IsParent() bool {
	return e.Name() == ".."
}

// DisplayName is the name used in paths: "NAME.EXT" or just "NAME" without extension.
func (e DirectoryEntry) DisplayName() string {
	name := e.Name()
	if ext := e.Ext(); ext != "" {
		return name + "." + ext
	}
	return name
}

func (e DirectoryEntry) String() string {
	return fmt.Sprintf("name = %v, attr = %d, isDir = %v, size = %d", e.DisplayName(), e.record.Attribute, e.IsDir(), e.record.FileSize)
}
