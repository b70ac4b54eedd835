package fatdisk

// Params are the values needed to create a new image.
type Params struct {
	BytesInSector      uint16 `yaml:"bytesInSector"`
	SectorsInCluster   uint8  `yaml:"sectorsInCluster"`
	SectorsOnDisk      uint32 `yaml:"sectorsOnDisk"`
	SectorsInTrack     uint16 `yaml:"sectorsInTrack"`
	NumberOfHeads      uint16 `yaml:"numberOfHeads"`
	ReservedSectors    uint16 `yaml:"reservedSectors"`
	FATCopies          uint8  `yaml:"fatCopies"`
	MaxFilesInRoot     uint16 `yaml:"maxFilesInRoot"`
	SectorsBeforeStart uint32 `yaml:"sectorsBeforeStart"`
}

// CustomParams fills everything except the geometry with the usual defaults.
func CustomParams(bytesInSector uint16, sectorsInCluster uint8, sectorsOnDisk uint32) Params {
	return Params{
		BytesInSector:    bytesInSector,
		SectorsInCluster: sectorsInCluster,
		SectorsOnDisk:    sectorsOnDisk,
		SectorsInTrack:   4,
		NumberOfHeads:    1,
		FATCopies:        1,
	}
}

// SmallParams is a 128 KiB FAT12 disk.
func SmallParams() Params {
	return CustomParams(512, 2, 256)
}

// MediumParams is an 8 MiB FAT16 disk.
func MediumParams() Params {
	return CustomParams(512, 2, 16384)
}

// LargeParams is a 512 MiB FAT32 disk.
func LargeParams() Params {
	return CustomParams(512, 4, 0x100000)
}

// Preset returns the params of a named preset ("small", "medium" or "large").
func Preset(name string) (Params, bool) {
	switch name {
	case "small":
		return SmallParams(), true
	case "medium":
		return MediumParams(), true
	case "large", "big":
		return LargeParams(), true
	}
	return Params{}, false
}
