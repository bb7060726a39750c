// Package fs implements the FAT32 filesystem the kernel mounts (spec
// §4.6): BIOS Parameter Block parsing, FAT chain walking, and a flat,
// single-component, root-directory-only namespace (open/read/write/
// seek/readdir/mkdir/rmdir all resolve exactly one path component
// against the root directory — there is no subdirectory traversal).
// The on-disk layout and constants (FAT32 extended-BPB signature 0x28/
// 0x29, the end-of-chain threshold 0x0FFFFFF8, 32-byte directory
// entries, the 0xE5 deleted-entry and 0x0F long-name-skip markers)
// follow the FAT32 specification the original kernel's filesystem.h
// assumes; nothing here is teacher-derived since the retrieved pack's
// only filesystem precedent (ufs) targets a different on-disk format
// entirely (see DESIGN.md's "Dropped teacher dependencies").
package fs

import (
	"sync"

	"golang.org/x/text/encoding/charmap"

	"blockdev"
	"defs"
)

const (
	dirEntSize   = 32
	attrReadOnly = 0x01
	attrHidden   = 0x02
	attrSystem   = 0x04
	attrVolumeID = 0x08
	attrDir      = 0x10
	attrArchive  = 0x20
	attrLongName = attrReadOnly | attrHidden | attrSystem | attrVolumeID

	freeCluster = 0x00000000
	eocMin      = 0x0FFFFFF8
	badCluster  = 0x0FFFFFF7
	fatEntMask  = 0x0FFFFFFF

	deletedMarker = 0xE5
	endOfDir      = 0x00
)

// bpb32 holds the fields of a FAT32 BIOS Parameter Block this kernel
// needs; it corresponds to the first sector of the volume.
type bpb32 struct {
	bytesPerSector    uint16
	sectorsPerCluster uint8
	reservedSectors   uint16
	numFATs           uint8
	totalSectors      uint32
	sectorsPerFAT     uint32
	rootCluster       uint32
	volumeLabel       string
}

// Fs_t is a mounted FAT32 volume.
type Fs_t struct {
	mu   sync.Mutex
	disk *blockdev.Disk_t
	bpb  bpb32

	fatStartSector  int
	dataStartSector int
	clusterBytes    int
}

func le16(b []byte, off int) uint16 {
	return uint16(b[off]) | uint16(b[off+1])<<8
}
func le32(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}
func putle16(b []byte, off int, v uint16) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
}
func putle32(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

// Mount parses disk's first sector as a FAT32 BPB and returns the
// mounted filesystem, failing with EINVAL if the extended boot
// signature (offset 66, must be 0x28 or 0x29) or the trailing 0x55AA
// signature is absent.
func Mount(disk *blockdev.Disk_t) (*Fs_t, defs.Err_t) {
	sec := make([]byte, blockdev.SectorSize)
	if err := disk.ReadSectors(0, 1, sec); err != 0 {
		return nil, err
	}
	if sec[510] != 0x55 || sec[511] != 0xAA {
		return nil, defs.EINVAL
	}
	extSig := sec[66]
	if extSig != 0x28 && extSig != 0x29 {
		return nil, defs.EINVAL
	}
	b := bpb32{
		bytesPerSector:    le16(sec, 11),
		sectorsPerCluster: sec[13],
		reservedSectors:   le16(sec, 14),
		numFATs:           sec[16],
		totalSectors:      le32(sec, 32),
		sectorsPerFAT:     le32(sec, 36),
		rootCluster:       le32(sec, 44),
	}
	if b.bytesPerSector != blockdev.SectorSize || b.sectorsPerCluster == 0 || b.numFATs == 0 {
		return nil, defs.EINVAL
	}
	dec := charmap.CodePage437.NewDecoder()
	if lbl, err := dec.String(string(sec[71:82])); err == nil {
		b.volumeLabel = lbl
	}
	f := &Fs_t{disk: disk, bpb: b}
	f.fatStartSector = int(b.reservedSectors)
	f.dataStartSector = f.fatStartSector + int(b.numFATs)*int(b.sectorsPerFAT)
	f.clusterBytes = int(b.sectorsPerCluster) * blockdev.SectorSize
	return f, 0
}

// clusterToSector returns the first sector of a data cluster (cluster
// numbering starts at 2 in FAT32).
func (f *Fs_t) clusterToSector(cluster uint32) int {
	return f.dataStartSector + int(cluster-2)*int(f.bpb.sectorsPerCluster)
}

func (f *Fs_t) readCluster(cluster uint32) ([]byte, defs.Err_t) {
	buf := make([]byte, f.clusterBytes)
	err := f.disk.ReadSectors(f.clusterToSector(cluster), int(f.bpb.sectorsPerCluster), buf)
	return buf, err
}

func (f *Fs_t) writeCluster(cluster uint32, data []byte) defs.Err_t {
	return f.disk.WriteSectors(f.clusterToSector(cluster), int(f.bpb.sectorsPerCluster), data)
}

// fatEntry reads cluster n's 32-bit entry (top 4 bits reserved, masked
// off) from the first FAT.
func (f *Fs_t) fatEntry(n uint32) (uint32, defs.Err_t) {
	byteOff := f.fatStartSector*blockdev.SectorSize + int(n)*4
	sec := byteOff / blockdev.SectorSize
	off := byteOff % blockdev.SectorSize
	buf := make([]byte, blockdev.SectorSize)
	if err := f.disk.ReadSectors(sec, 1, buf); err != 0 {
		return 0, err
	}
	return le32(buf, off) & fatEntMask, 0
}

// setFatEntry writes cluster n's entry across every FAT copy.
func (f *Fs_t) setFatEntry(n uint32, v uint32) defs.Err_t {
	for fatIdx := 0; fatIdx < int(f.bpb.numFATs); fatIdx++ {
		fatBase := f.fatStartSector + fatIdx*int(f.bpb.sectorsPerFAT)
		byteOff := fatBase*blockdev.SectorSize + int(n)*4
		sec := byteOff / blockdev.SectorSize
		off := byteOff % blockdev.SectorSize
		buf := make([]byte, blockdev.SectorSize)
		if err := f.disk.ReadSectors(sec, 1, buf); err != 0 {
			return err
		}
		putle32(buf, off, v&fatEntMask)
		if err := f.disk.WriteSectors(sec, 1, buf); err != 0 {
			return err
		}
	}
	return 0
}

func isEOC(entry uint32) bool { return entry >= eocMin }

// chain returns every cluster number in start's chain, in order.
func (f *Fs_t) chain(start uint32) ([]uint32, defs.Err_t) {
	var out []uint32
	cur := start
	for cur != freeCluster && !isEOC(cur) && cur != badCluster {
		out = append(out, cur)
		next, err := f.fatEntry(cur)
		if err != 0 {
			return nil, err
		}
		cur = next
	}
	return out, 0
}

// allocCluster finds a free cluster, marks it end-of-chain, and
// optionally links it onto the tail of an existing chain.
func (f *Fs_t) allocCluster(tail uint32) (uint32, defs.Err_t) {
	total := (int(f.bpb.totalSectors) - f.dataStartSector) / int(f.bpb.sectorsPerCluster)
	for n := uint32(2); n < uint32(total)+2; n++ {
		entry, err := f.fatEntry(n)
		if err != 0 {
			return 0, err
		}
		if entry == freeCluster {
			if err := f.setFatEntry(n, eocMin); err != 0 {
				return 0, err
			}
			if tail != 0 {
				if err := f.setFatEntry(tail, n); err != 0 {
					return 0, err
				}
			}
			return n, 0
		}
	}
	return 0, defs.ENOSPC
}

func (f *Fs_t) freeChain(start uint32) defs.Err_t {
	clusters, err := f.chain(start)
	if err != 0 {
		return err
	}
	for _, c := range clusters {
		if err := f.setFatEntry(c, freeCluster); err != 0 {
			return err
		}
	}
	return 0
}
