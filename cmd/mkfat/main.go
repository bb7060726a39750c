// Command mkfat builds a FAT32 disk image the kernel can boot from, the
// way the original kernel's mkfs built a UFS image from a bootloader,
// kernel binary, and a skeleton directory tree. This version formats a
// FAT32 volume instead and copies a host directory's regular files
// (one level deep, matching the kernel's root-only namespace) into it.
package main

import (
	"fmt"
	"os"

	"blockdev"
	"fdops"
	"fs"
)

func usage(me string) {
	fmt.Printf("%s <output image> <size in sectors> <skel dir>\n", me)
	os.Exit(1)
}

func main() {
	if len(os.Args) != 4 {
		usage(os.Args[0])
	}
	image := os.Args[1]
	var nsec int
	if _, err := fmt.Sscanf(os.Args[2], "%d", &nsec); err != nil || nsec <= 0 {
		fmt.Printf("bad sector count %q\n", os.Args[2])
		os.Exit(1)
	}
	skel := os.Args[3]

	disk := blockdev.New(nsec)
	fsys, ferr := fs.Format(disk, fs.DefaultFormatParams())
	if ferr != 0 {
		fmt.Printf("format failed: %v\n", ferr)
		os.Exit(1)
	}

	entries, err := os.ReadDir(skel)
	if err != nil {
		fmt.Printf("failed to read skel dir %q: %v\n", skel, err)
		os.Exit(1)
	}
	for _, ent := range entries {
		if ent.IsDir() {
			fmt.Printf("skipping subdirectory %q: root-only namespace\n", ent.Name())
			continue
		}
		if err := copyFile(fsys, skel+"/"+ent.Name(), ent.Name()); err != nil {
			fmt.Printf("failed to copy %q: %v\n", ent.Name(), err)
			os.Exit(1)
		}
	}

	if err := disk.Save(image); err != nil {
		fmt.Printf("failed to save image: %v\n", err)
		os.Exit(1)
	}
}

func copyFile(fsys *fs.Fs_t, hostPath, destName string) error {
	data, err := os.ReadFile(hostPath)
	if err != nil {
		return err
	}
	fl, ferr := fsys.Open(destName, fs.O_CREAT|fs.O_RDWR)
	if ferr != 0 {
		return fmt.Errorf("open: %v", ferr)
	}
	if _, werr := fl.Write(fdops.MkIovec(data)); werr != 0 {
		return fmt.Errorf("write: %v", werr)
	}
	return nil
}
