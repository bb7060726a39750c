package fs

import (
	"defs"
	"fdops"
)

// Open flags, matching the original kernel's filesystem.h subset this
// spec exposes.
const (
	O_RDONLY = 0x0
	O_WRONLY = 0x1
	O_RDWR   = 0x2
	O_CREAT  = 0x0100
)

// DirEntry is one entry returned by Readdir: a display name and
// whether it names a directory.
type DirEntry struct {
	Name  string
	IsDir bool
	Size  uint32
}

// File_t is an open regular file, resolved against the root directory.
type File_t struct {
	fs      *Fs_t
	name    string
	clusters []uint32
	size    uint32
	pos     int
	write   bool
	ent     dirent
}

var _ fdops.Fdops_i = (*fileFd_t)(nil)

// fileFd_t adapts File_t to fdops.Fdops_i for a process's descriptor
// table; Userio_i's Remain()-bounded copy naturally implements partial
// reads/writes at end-of-file / end-of-cluster-chain.
type fileFd_t struct {
	f *File_t
}

// Open resolves name against the root directory. With O_CREAT set, a
// missing file is created as an empty regular file; without it, a
// missing name fails with ENOENT. Opening a directory for write access
// fails with EINVAL (directories aren't writable as byte streams in
// this filesystem).
func (f *Fs_t) Open(name string, flags int) (*File_t, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, exists, err := f.findInRoot(name)
	if err != 0 {
		return nil, err
	}
	if !exists {
		if flags&O_CREAT == 0 {
			return nil, defs.ENOENT
		}
		nd, cerr := f.createInRoot(name, attrArchive)
		if cerr != 0 {
			return nil, cerr
		}
		d = nd
	}
	if d.attr&attrDir != 0 && flags&(O_WRONLY|O_RDWR) != 0 {
		return nil, defs.EINVAL
	}
	var clusters []uint32
	if d.firstCluster != 0 {
		clusters, err = f.chain(d.firstCluster)
		if err != 0 {
			return nil, err
		}
	}
	return &File_t{
		fs:       f,
		name:     name,
		clusters: clusters,
		size:     d.fileSize,
		write:    flags&(O_WRONLY|O_RDWR) != 0,
		ent:      d,
	}, 0
}

// Fdops wraps fl as a descriptor-table resource.
func (fl *File_t) Fdops() fdops.Fdops_i { return &fileFd_t{f: fl} }

// Seek repositions the read/write cursor. whence follows the usual
// 0=start/1=current/2=end convention.
func (fl *File_t) Seek(offset int, whence int) defs.Err_t {
	var base int
	switch whence {
	case 0:
		base = 0
	case 1:
		base = fl.pos
	case 2:
		base = int(fl.size)
	default:
		return defs.EINVAL
	}
	np := base + offset
	if np < 0 {
		return defs.EINVAL
	}
	fl.pos = np
	return 0
}

// Read copies into dst starting at the file's current cursor, stopping
// at end-of-file. It advances the cursor by however much it copied.
func (fl *File_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	fl.fs.mu.Lock()
	defer fl.fs.mu.Unlock()
	if fl.pos >= int(fl.size) {
		return 0, 0
	}
	total := 0
	for dst.Remain() > 0 && fl.pos < int(fl.size) {
		clusterIdx := fl.pos / fl.fs.clusterBytes
		within := fl.pos % fl.fs.clusterBytes
		if clusterIdx >= len(fl.clusters) {
			break
		}
		buf, err := fl.fs.readCluster(fl.clusters[clusterIdx])
		if err != 0 {
			return total, err
		}
		end := fl.fs.clusterBytes
		if remFile := int(fl.size) - fl.pos; remFile < end-within {
			end = within + remFile
		}
		n, err := dst.Uiowrite(buf[within:end])
		if err != 0 {
			return total, err
		}
		total += n
		fl.pos += n
		if n == 0 {
			break
		}
	}
	return total, 0
}

// Write copies from src into the file starting at the current cursor,
// allocating new clusters as needed, and grows fileSize if the write
// extends past the previous end of file.
func (fl *File_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	if !fl.write {
		return 0, defs.EINVAL
	}
	fl.fs.mu.Lock()
	defer fl.fs.mu.Unlock()
	total := 0
	for src.Remain() > 0 {
		clusterIdx := fl.pos / fl.fs.clusterBytes
		within := fl.pos % fl.fs.clusterBytes
		for clusterIdx >= len(fl.clusters) {
			var tail uint32
			if len(fl.clusters) > 0 {
				tail = fl.clusters[len(fl.clusters)-1]
			}
			nc, err := fl.fs.allocCluster(tail)
			if err != 0 {
				return total, err
			}
			if tail == 0 {
				fl.ent.firstCluster = nc
				if err := fl.fs.writeDirentAt(fl.ent); err != 0 {
					return total, err
				}
			}
			fl.clusters = append(fl.clusters, nc)
		}
		buf, err := fl.fs.readCluster(fl.clusters[clusterIdx])
		if err != 0 {
			return total, err
		}
		n, err := src.Uioread(buf[within:])
		if err != 0 {
			return total, err
		}
		if err := fl.fs.writeCluster(fl.clusters[clusterIdx], buf); err != 0 {
			return total, err
		}
		total += n
		fl.pos += n
		if fl.pos > int(fl.size) {
			fl.size = uint32(fl.pos)
		}
		if n == 0 {
			break
		}
	}
	fl.ent.fileSize = fl.size
	if err := fl.fs.writeDirentAt(fl.ent); err != 0 {
		return total, err
	}
	return total, 0
}

func (ff *fileFd_t) Read(dst fdops.Userio_i) (int, defs.Err_t)  { return ff.f.Read(dst) }
func (ff *fileFd_t) Write(src fdops.Userio_i) (int, defs.Err_t) { return ff.f.Write(src) }
func (ff *fileFd_t) Close() defs.Err_t                          { return 0 }
func (ff *fileFd_t) Reopen() defs.Err_t                         { return 0 }

// Readdir lists every live entry in the root directory.
func (f *Fs_t) Readdir() ([]DirEntry, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ents, err := f.readRoot()
	if err != 0 {
		return nil, err
	}
	out := make([]DirEntry, 0, len(ents))
	for _, e := range ents {
		out = append(out, DirEntry{Name: e.displayName(), IsDir: e.attr&attrDir != 0, Size: e.fileSize})
	}
	return out, 0
}

// Mkdir creates an empty subdirectory entry in the root directory,
// backed by a single zeroed cluster.
func (f *Fs_t) Mkdir(name string) defs.Err_t {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.createInRoot(name, attrDir)
	if err != 0 {
		return err
	}
	nc, aerr := f.allocCluster(0)
	if aerr != 0 {
		return aerr
	}
	zero := make([]byte, f.clusterBytes)
	if err := f.writeCluster(nc, zero); err != 0 {
		return err
	}
	d.firstCluster = nc
	return f.writeDirentAt(d)
}

// Rmdir removes a subdirectory entry from the root directory. It fails
// with ENOENT if name does not exist and with ENOTDIR if name is not a
// directory. The directory's contents are not checked for emptiness.
func (f *Fs_t) Rmdir(name string) defs.Err_t {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, exists, err := f.findInRoot(name)
	if err != 0 {
		return err
	}
	if !exists {
		return defs.ENOENT
	}
	if d.attr&attrDir == 0 {
		return defs.ENOTDIR
	}
	return f.removeFromRoot(name)
}

// Unlink removes a regular file's entry and frees its cluster chain.
func (f *Fs_t) Unlink(name string) defs.Err_t {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, exists, err := f.findInRoot(name)
	if err != 0 {
		return err
	}
	if !exists {
		return defs.ENOENT
	}
	if d.attr&attrDir != 0 {
		return defs.EINVAL
	}
	return f.removeFromRoot(name)
}
