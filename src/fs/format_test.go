package fs

import (
	"testing"

	"blockdev"
	"fdops"
)

func TestFormatThenOpenWriteRead(t *testing.T) {
	disk := blockdev.New(512)
	fsys, err := Format(disk, DefaultFormatParams())
	if err != 0 {
		t.Fatalf("Format: %v", err)
	}
	fl, err := fsys.Open("greeting.txt", O_CREAT|O_RDWR)
	if err != 0 {
		t.Fatalf("Open: %v", err)
	}
	payload := []byte("formatted from scratch")
	if n, err := fl.Write(fdops.MkIovec(payload)); err != 0 || n != len(payload) {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
	fl2, err := fsys.Open("greeting.txt", O_RDONLY)
	if err != 0 {
		t.Fatalf("reopen: %v", err)
	}
	buf := make([]byte, len(payload))
	if n, err := fl2.Read(fdops.MkIovec(buf)); err != 0 || n != len(payload) {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}
	if string(buf) != string(payload) {
		t.Errorf("round trip = %q, want %q", buf, payload)
	}
}

func TestFormatRejectsTinyDisk(t *testing.T) {
	disk := blockdev.New(4)
	if _, err := Format(disk, DefaultFormatParams()); err == 0 {
		t.Errorf("Format on 4-sector disk = 0, want an error")
	}
}
