package fs

import (
	"strings"

	"golang.org/x/text/encoding/charmap"

	"blockdev"
	"defs"
)

// dirent is one 32-byte FAT32 directory entry, decoded. sector/off
// locate the entry's encoding on disk: sector is an absolute disk
// sector, off is the byte offset of the entry's first byte within that
// sector (0..blockdev.SectorSize-32).
type dirent struct {
	shortName    [11]byte
	attr         byte
	firstCluster uint32
	fileSize     uint32
	sector       int
	off          int
}

func decodeDirent(buf []byte, off int) dirent {
	var d dirent
	copy(d.shortName[:], buf[off:off+11])
	d.attr = buf[off+11]
	hi := le16(buf, off+20)
	lo := le16(buf, off+26)
	d.firstCluster = uint32(hi)<<16 | uint32(lo)
	d.fileSize = le32(buf, off+28)
	return d
}

func encodeDirent(buf []byte, off int, d dirent) {
	copy(buf[off:off+11], d.shortName[:])
	buf[off+11] = d.attr
	buf[off+12] = 0 // reserved
	putle16(buf, off+20, uint16(d.firstCluster>>16))
	putle16(buf, off+26, uint16(d.firstCluster&0xffff))
	putle32(buf, off+28, d.fileSize)
}

var cp437Decoder = charmap.CodePage437.NewDecoder()
var cp437Encoder = charmap.CodePage437.NewEncoder()

// displayName converts an 8.3 short name into "NAME.EXT" / "NAME" form.
func (d dirent) displayName() string {
	base := strings.TrimRight(string(d.shortName[0:8]), " ")
	ext := strings.TrimRight(string(d.shortName[8:11]), " ")
	raw := base
	if ext != "" {
		raw = base + "." + ext
	}
	if out, err := cp437Decoder.String(raw); err == nil {
		return out
	}
	return raw
}

// shortNameFor renders name into an 11-byte 8.3 short name, uppercased
// and CP437-encoded. A base longer than 8 or an extension longer than 3
// characters is not truncated: it fails with EINVAL.
func shortNameFor(name string) ([11]byte, defs.Err_t) {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	enc, err := cp437Encoder.String(strings.ToUpper(name))
	if err != nil {
		return out, defs.EINVAL
	}
	base, ext := enc, ""
	if i := strings.LastIndexByte(enc, '.'); i >= 0 {
		base, ext = enc[:i], enc[i+1:]
	}
	if len(base) == 0 || len(base) > 8 || len(ext) > 3 {
		return out, defs.EINVAL
	}
	copy(out[0:8], base)
	copy(out[8:11], ext)
	return out, 0
}

// rootDirClusters returns every cluster in the root directory's chain.
func (f *Fs_t) rootDirClusters() ([]uint32, defs.Err_t) {
	return f.chain(f.bpb.rootCluster)
}

// forEachRootSector calls fn with each (absolute sector, sector-sized
// buffer) backing the root directory, in order, stopping early if fn
// returns true ("found" / "done").
func (f *Fs_t) forEachRootSector(fn func(sector int, buf []byte) bool) defs.Err_t {
	clusters, err := f.rootDirClusters()
	if err != 0 {
		return err
	}
	secPerClust := int(f.bpb.sectorsPerCluster)
	for _, c := range clusters {
		base := f.clusterToSector(c)
		for s := 0; s < secPerClust; s++ {
			sector := base + s
			buf := make([]byte, blockdev.SectorSize)
			if err := f.disk.ReadSectors(sector, 1, buf); err != 0 {
				return err
			}
			if fn(sector, buf) {
				return 0
			}
		}
	}
	return 0
}

// readRoot returns every live (non-deleted, non-long-name, non-volume-
// id) entry in the root directory.
func (f *Fs_t) readRoot() ([]dirent, defs.Err_t) {
	var out []dirent
	err := f.forEachRootSector(func(sector int, buf []byte) bool {
		for off := 0; off+dirEntSize <= len(buf); off += dirEntSize {
			marker := buf[off]
			if marker == endOfDir {
				return true
			}
			if marker == deletedMarker {
				continue
			}
			attr := buf[off+11]
			if attr == attrLongName || attr&attrVolumeID != 0 {
				continue
			}
			d := decodeDirent(buf, off)
			d.sector, d.off = sector, off
			out = append(out, d)
		}
		return false
	})
	return out, err
}

// findInRoot looks up name (case-insensitively) among the root
// directory's live entries.
func (f *Fs_t) findInRoot(name string) (dirent, bool, defs.Err_t) {
	ents, err := f.readRoot()
	if err != 0 {
		return dirent{}, false, err
	}
	for _, e := range ents {
		if strings.EqualFold(e.displayName(), name) {
			return e, true, 0
		}
	}
	return dirent{}, false, 0
}

// writeDirentAt stores d back to its recorded sector/offset.
func (f *Fs_t) writeDirentAt(d dirent) defs.Err_t {
	buf := make([]byte, blockdev.SectorSize)
	if err := f.disk.ReadSectors(d.sector, 1, buf); err != 0 {
		return err
	}
	encodeDirent(buf, d.off, d)
	return f.disk.WriteSectors(d.sector, 1, buf)
}

// createInRoot appends a new directory entry for name with the given
// attribute, allocating an additional root-directory cluster if every
// existing one is full. It fails with EEXIST if name is already taken.
func (f *Fs_t) createInRoot(name string, attr byte) (dirent, defs.Err_t) {
	if _, exists, err := f.findInRoot(name); err != 0 {
		return dirent{}, err
	} else if exists {
		return dirent{}, defs.EEXIST
	}
	short, serr := shortNameFor(name)
	if serr != 0 {
		return dirent{}, serr
	}
	d := dirent{shortName: short, attr: attr}
	placed := false
	err := f.forEachRootSector(func(sector int, buf []byte) bool {
		for off := 0; off+dirEntSize <= len(buf); off += dirEntSize {
			if buf[off] == endOfDir || buf[off] == deletedMarker {
				d.sector, d.off = sector, off
				placed = true
				return true
			}
		}
		return false
	})
	if err != 0 {
		return dirent{}, err
	}
	if !placed {
		clusters, cerr := f.rootDirClusters()
		if cerr != 0 {
			return dirent{}, cerr
		}
		tail := clusters[len(clusters)-1]
		nc, aerr := f.allocCluster(tail)
		if aerr != 0 {
			return dirent{}, aerr
		}
		zero := make([]byte, f.clusterBytes)
		if err := f.writeCluster(nc, zero); err != 0 {
			return dirent{}, err
		}
		d.sector, d.off = f.clusterToSector(nc), 0
	}
	if err := f.writeDirentAt(d); err != 0 {
		return dirent{}, err
	}
	return d, 0
}

// removeFromRoot marks name's entry deleted (0xE5) and frees its
// cluster chain.
func (f *Fs_t) removeFromRoot(name string) defs.Err_t {
	d, exists, err := f.findInRoot(name)
	if err != 0 {
		return err
	}
	if !exists {
		return defs.ENOENT
	}
	if d.firstCluster != 0 {
		if err := f.freeChain(d.firstCluster); err != 0 {
			return err
		}
	}
	buf := make([]byte, blockdev.SectorSize)
	if err := f.disk.ReadSectors(d.sector, 1, buf); err != 0 {
		return err
	}
	buf[d.off] = deletedMarker
	return f.disk.WriteSectors(d.sector, 1, buf)
}
