package fatdisk

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/aligator/fatdisk/checkpoint"
)

// Variant is the FAT flavour of an image. It is never stored but always derived from the cluster count.
type Variant uint8

const (
	FAT12 Variant = iota
	FAT16
	FAT32
)

func (v Variant) String() string {
	switch v {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	}
	return fmt.Sprintf("Variant(%d)", uint8(v))
}

// variantCodes contains everything which differs between the variants.
type variantCodes struct {
	bits       int
	bad        uint32
	eocMin     uint32
	eocMax     uint32
	headerSize int64
}

var variantTable = [...]variantCodes{
	FAT12: {bits: 12, bad: 0xFF7, eocMin: 0xFF8, eocMax: 0xFFF, headerSize: commonHeaderSize},
	FAT16: {bits: 16, bad: 0xFFF7, eocMin: 0xFFF8, eocMax: 0xFFFF, headerSize: commonHeaderSize},
	FAT32: {bits: 32, bad: 0x0FFFFFF7, eocMin: 0x0FFFFFF8, eocMax: 0x0FFFFFFF, headerSize: fat32HeaderSize},
}

func (v Variant) codes() variantCodes {
	return variantTable[v]
}

// VariantFor derives the variant from the number of clusters on a disk.
func VariantFor(clusters uint64) Variant {
	switch {
	case clusters >= 0xFFF7:
		return FAT32
	case clusters >= 0xFF7:
		return FAT16
	default:
		return FAT12
	}
}

// BootRecord describes the geometry of an image. It cannot be changed once built.
type BootRecord struct {
	header bootHeader
	ext    fat32Extension
}

// NewBootRecord builds the boot record for a new image.
func NewBootRecord(p Params) (*BootRecord, error) {
	r := &BootRecord{
		header: bootHeader{
			BytesInSector:      p.BytesInSector,
			SectorsInCluster:   p.SectorsInCluster,
			ReservedSectors:    p.ReservedSectors,
			NumFATs:            p.FATCopies,
			MaxRootEntries:     p.MaxFilesInRoot,
			SectorsInTrack:     p.SectorsInTrack,
			NumberOfHeads:      p.NumberOfHeads,
			SectorsBeforeStart: p.SectorsBeforeStart,
			TotalSectors:       p.SectorsOnDisk,
		},
		ext: defaultExtension(),
	}

	if err := r.validate(); err != nil {
		return nil, err
	}

	sectorSize := int64(r.header.BytesInSector)
	r.ext.FATCopySize = uint32((r.FATSectionSize() + sectorSize - 1) / sectorSize)
	return r, nil
}

// defaultExtension marks only one FAT copy active (bit 7) and puts the root into cluster 2.
func defaultExtension() fat32Extension {
	return fat32Extension{
		UpdateMode:  0x80,
		RootCluster: 2,
	}
}

// ParseBootRecord reads the boot record from the first bytes of an image.
// FAT32 images need the full 512 byte header, all others only 36 bytes.
func ParseBootRecord(b []byte) (*BootRecord, error) {
	if len(b) < commonHeaderSize {
		return nil, checkpoint.Newf(ErrValidation, "boot header has only %d bytes, need %d", len(b), commonHeaderSize)
	}

	r := &BootRecord{ext: defaultExtension()}
	err := binary.Read(bytes.NewReader(b[:commonHeaderSize]), binary.BigEndian, &r.header)
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrValidation)
	}

	if err := r.validate(); err != nil {
		return nil, err
	}

	if r.Variant() != FAT32 {
		return r, nil
	}

	if len(b) < fat32HeaderSize {
		return nil, checkpoint.Newf(ErrValidation, "FAT32 boot header has only %d bytes, need %d", len(b), fat32HeaderSize)
	}
	err = binary.Read(bytes.NewReader(b[commonHeaderSize:]), binary.BigEndian, &r.ext)
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrValidation)
	}

	if r.ext.RootCluster < 2 || r.ext.RootCluster >= r.TableEntries() {
		return nil, checkpoint.Newf(ErrValidation, "root cluster %d is outside of the data area", r.ext.RootCluster)
	}

	return r, nil
}

func (r *BootRecord) validate() error {
	// FAT only supports 512, 1024, 2048 and 4096 bytes per sector.
	switch r.header.BytesInSector {
	case 512, 1024, 2048, 4096:
	default:
		return checkpoint.Newf(ErrValidation, "invalid sector size %d", r.header.BytesInSector)
	}

	// Sectors per cluster has to be a power of two and greater than 0.
	spc := r.header.SectorsInCluster
	if spc == 0 || spc&(spc-1) != 0 {
		return checkpoint.Newf(ErrValidation, "invalid sectors per cluster %d", spc)
	}

	if r.header.TotalSectors == 0 {
		return checkpoint.Newf(ErrValidation, "disk has no sectors")
	}

	return nil
}

// Bytes returns the header as it is stored at the beginning of the image.
func (r *BootRecord) Bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, r.HeaderSize()))

	// Writing fixed size structs into a bytes.Buffer cannot fail.
	_ = binary.Write(buf, binary.BigEndian, r.header)
	if r.Variant() == FAT32 {
		_ = binary.Write(buf, binary.BigEndian, r.ext)
	}

	result := make([]byte, r.HeaderSize())
	copy(result, buf.Bytes())
	return result
}

func (r *BootRecord) BytesInSector() int    { return int(r.header.BytesInSector) }
func (r *BootRecord) SectorsInCluster() int { return int(r.header.SectorsInCluster) }
func (r *BootRecord) SectorsOnDisk() uint32 { return r.header.TotalSectors }
func (r *BootRecord) SectorsInTrack() int   { return int(r.header.SectorsInTrack) }
func (r *BootRecord) NumberOfHeads() int    { return int(r.header.NumberOfHeads) }
func (r *BootRecord) ReservedSectors() int  { return int(r.header.ReservedSectors) }
func (r *BootRecord) FATCopies() int        { return int(r.header.NumFATs) }
func (r *BootRecord) MaxFilesInRoot() int   { return int(r.header.MaxRootEntries) }

func (r *BootRecord) SectorsBeforeStart() uint32 { return r.header.SectorsBeforeStart }

// FAT32 only values. They keep their defaults for the other variants.
func (r *BootRecord) FATCopySize() uint32   { return r.ext.FATCopySize }
func (r *BootRecord) FATUpdateMode() uint16 { return r.ext.UpdateMode }
func (r *BootRecord) VersionNumber() uint16 { return r.ext.Version }

// Variant derives the FAT type from the number of full clusters.
func (r *BootRecord) Variant() Variant {
	return VariantFor(uint64(r.header.TotalSectors) / uint64(r.header.SectorsInCluster))
}

func (r *BootRecord) BytesInCluster() int64 {
	return int64(r.header.BytesInSector) * int64(r.header.SectorsInCluster)
}

// ClustersOnDisk counts a trailing partial cluster as a full one.
func (r *BootRecord) ClustersOnDisk() uint64 {
	spc := uint64(r.header.SectorsInCluster)
	return (uint64(r.header.TotalSectors) + spc - 1) / spc
}

// TableEntries is the number of allocation table entries: the two reserved ones plus one per cluster.
// Cluster numbers colliding with the status codes of the variant are left out.
func (r *BootRecord) TableEntries() uint32 {
	n := r.ClustersOnDisk() + 2
	if bad := uint64(r.Variant().codes().bad); n > bad {
		n = bad
	}
	return uint32(n)
}

// FATSectionSize is the size of the allocation table region in bytes.
func (r *BootRecord) FATSectionSize() int64 {
	return (int64(r.TableEntries()) + 7) / 8 * int64(r.Variant().codes().bits)
}

func (r *BootRecord) HeaderSize() int64 {
	return r.Variant().codes().headerSize
}

// FirstSectorOffset is where the data region starts.
func (r *BootRecord) FirstSectorOffset() int64 {
	return r.HeaderSize() + r.FATSectionSize()
}

// ClusterOffset is the byte offset of a cluster inside of the image.
func (r *BootRecord) ClusterOffset(cluster uint32) int64 {
	return r.FirstSectorOffset() + int64(cluster)*r.BytesInCluster()
}

// ImageSize is the size the image needs to hold every cluster.
func (r *BootRecord) ImageSize() int64 {
	return r.ClusterOffset(r.TableEntries())
}

func (r *BootRecord) RootCluster() uint32 {
	if r.Variant() == FAT32 {
		return r.ext.RootCluster
	}
	return 2
}

func (r *BootRecord) String() string {
	return fmt.Sprintf("%v: %d sectors of %d bytes, %d sectors per cluster, %d clusters",
		r.Variant(), r.header.TotalSectors, r.header.BytesInSector, r.header.SectorsInCluster, r.ClustersOnDisk())
}
