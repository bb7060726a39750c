package fs

import (
	"golang.org/x/text/encoding/charmap"

	"blockdev"
	"defs"
)

// FormatParams controls the geometry Format lays out, mirroring the
// handful of knobs the teacher's ufs.MkDisk took (log/inode/data block
// counts) adapted to FAT32's equivalents.
type FormatParams struct {
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	VolumeLabel       string
}

// DefaultFormatParams gives a small volume sane defaults: one sector
// per cluster (so small test/demo images don't waste space), two
// reserved sectors, a single FAT copy.
func DefaultFormatParams() FormatParams {
	return FormatParams{SectorsPerCluster: 1, ReservedSectors: 2, NumFATs: 1, VolumeLabel: "BISCUIT"}
}

// Format writes a fresh FAT32 BPB, zeroed FAT tables, and a single
// zeroed cluster for the root directory onto disk, the way ufs.MkDisk
// laid out a brand new UFS volume before cmd/mkfs populated it. It
// returns the mounted filesystem, ready for Open/Mkdir calls.
func Format(disk *blockdev.Disk_t, p FormatParams) (*Fs_t, defs.Err_t) {
	nsec := disk.Nsec()
	clusterSectors := int(p.SectorsPerCluster)
	dataSectors := nsec - int(p.ReservedSectors)
	numClusters := dataSectors / clusterSectors
	if numClusters < 3 {
		return nil, defs.EINVAL
	}
	// Size each FAT to cover every possible cluster with a 4-byte entry,
	// rounded up to a whole sector, then recompute how many data
	// clusters actually fit once the FAT sectors are carved out.
	secPerFAT := (numClusters*4 + blockdev.SectorSize - 1) / blockdev.SectorSize
	for {
		dataStart := int(p.ReservedSectors) + int(p.NumFATs)*secPerFAT
		fit := (nsec - dataStart) / clusterSectors
		need := (fit*4 + blockdev.SectorSize - 1) / blockdev.SectorSize
		if need <= secPerFAT {
			numClusters = fit
			break
		}
		secPerFAT = need
	}
	if numClusters < 3 {
		return nil, defs.ENOSPC
	}

	boot := make([]byte, blockdev.SectorSize)
	putle16(boot, 11, blockdev.SectorSize)
	boot[13] = p.SectorsPerCluster
	putle16(boot, 14, p.ReservedSectors)
	boot[16] = p.NumFATs
	putle32(boot, 32, uint32(nsec))
	putle32(boot, 36, uint32(secPerFAT))
	const rootCluster = 2
	putle32(boot, 44, rootCluster)
	boot[66] = 0x29
	enc := charmap.CodePage437.NewEncoder()
	label := p.VolumeLabel
	if len(label) > 11 {
		label = label[:11]
	}
	for len(label) < 11 {
		label += " "
	}
	if raw, err := enc.String(label); err == nil {
		copy(boot[71:82], raw)
	}
	boot[510], boot[511] = 0x55, 0xAA
	if err := disk.WriteSectors(0, 1, boot); err != 0 {
		return nil, err
	}

	fatStart := int(p.ReservedSectors)
	zeroFAT := make([]byte, blockdev.SectorSize)
	for fatIdx := 0; fatIdx < int(p.NumFATs); fatIdx++ {
		base := fatStart + fatIdx*secPerFAT
		for s := 0; s < secPerFAT; s++ {
			if err := disk.WriteSectors(base+s, 1, zeroFAT); err != 0 {
				return nil, err
			}
		}
	}

	f, err := Mount(disk)
	if err != 0 {
		return nil, err
	}
	if err := f.setFatEntry(rootCluster, eocMin); err != 0 {
		return nil, err
	}
	zero := make([]byte, f.clusterBytes)
	if err := f.writeCluster(rootCluster, zero); err != 0 {
		return nil, err
	}
	return f, 0
}
