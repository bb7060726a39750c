// Package blockdev implements a simulated block device: a flat,
// sector-addressed byte arena backing the FAT32 volume the kernel
// mounts. Real hardware would put an AHCI controller and a PCI bus
// between the filesystem and the disk, the way the teacher's ufs driver
// does (ahci_disk_t implementing pci.Disk_i's Start/blockqueue model);
// this kernel has no PCI bus to simulate, so Disk_t plays the same role
// — the single seam fs talks to for sector I/O — directly over an
// in-memory (or file-backed, via Load/Save) byte slice.
package blockdev

import (
	"os"
	"sync"

	"defs"
)

// SectorSize is the fixed sector size this device exposes, matching
// the 512-byte sectors a FAT32 BPB is defined in terms of.
const SectorSize = 512

// Disk_t is a simulated block device of a fixed number of sectors.
type Disk_t struct {
	mu      sync.Mutex
	sectors []byte
	nsec    int
}

// New constructs a disk of nsec sectors, zero-filled.
func New(nsec int) *Disk_t {
	return &Disk_t{sectors: make([]byte, nsec*SectorSize), nsec: nsec}
}

// Load constructs a disk from the contents of an existing image file
// (built by cmd/mkfat), rounding its size down to a whole number of
// sectors.
func Load(path string) (*Disk_t, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	nsec := len(data) / SectorSize
	d := &Disk_t{sectors: data[:nsec*SectorSize], nsec: nsec}
	return d, nil
}

// Save writes the disk's current contents back out to path.
func (d *Disk_t) Save(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return os.WriteFile(path, d.sectors, 0644)
}

// Nsec reports the device's capacity in sectors.
func (d *Disk_t) Nsec() int { return d.nsec }

// ReadSectors copies nsec sectors starting at lba into dst, which must
// be at least nsec*SectorSize bytes.
func (d *Disk_t) ReadSectors(lba, nsec int, dst []byte) defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	if lba < 0 || nsec < 0 || lba+nsec > d.nsec || len(dst) < nsec*SectorSize {
		return defs.EINVAL
	}
	off := lba * SectorSize
	copy(dst, d.sectors[off:off+nsec*SectorSize])
	return 0
}

// WriteSectors copies nsec sectors from src to the device starting at
// lba.
func (d *Disk_t) WriteSectors(lba, nsec int, src []byte) defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	if lba < 0 || nsec < 0 || lba+nsec > d.nsec || len(src) < nsec*SectorSize {
		return defs.EINVAL
	}
	off := lba * SectorSize
	copy(d.sectors[off:off+nsec*SectorSize], src[:nsec*SectorSize])
	return 0
}
