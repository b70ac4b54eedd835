// File model contains the structs which match the direct structures of the image.
// All multi-byte values are stored big-endian.

package fatdisk

const (
	// commonHeaderSize is the size of the boot header shared by all variants.
	commonHeaderSize = 36
	// fat32HeaderSize is the size of the FAT32 boot header including the extension.
	fat32HeaderSize = 512
	// entrySize is the size of a single directory record.
	entrySize = 32
)

// bootHeader is the part of the boot sector every variant has (bytes 0-35).
type bootHeader struct {
	_                  [11]byte
	BytesInSector      uint16
	SectorsInCluster   uint8
	ReservedSectors    uint16
	NumFATs            uint8
	MaxRootEntries     uint16
	_                  [5]byte
	SectorsInTrack     uint16
	NumberOfHeads      uint16
	SectorsBeforeStart uint32
	TotalSectors       uint32
}

// fat32Extension directly follows the bootHeader on FAT32 images (bytes 36-47).
type fat32Extension struct {
	FATCopySize uint32
	UpdateMode  uint16
	Version     uint16
	RootCluster uint32
}

// entryRecord is one 32 byte slot of a directory block.
type entryRecord struct {
	Name         [8]byte
	Ext          [3]byte
	Attribute    byte
	_            [12]byte
	FirstCluster uint32
	FileSize     uint32
}
