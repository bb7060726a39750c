// Package bounds defines the address-space layout constants shared by the
// physical and virtual memory managers. Keeping them in their own leaf
// package (mirroring the teacher's layering, where "vm" imports "bounds"
// rather than hard-coding these numbers itself) lets mem and vm agree on
// the kernel/user split without importing each other.
package bounds

// USER_BASE is the lowest virtual address a user mapping may occupy.
// Leaving the first 4 MiB unmapped catches a wide class of null-pointer
// and small-offset bugs in user code for free.
const USER_BASE = 0x0000_0000_0040_0000

// USER_STACK_TOP is the highest user virtual address (inclusive);
// stacks grow down from the page boundary below it.
const USER_STACK_TOP = 0x0000_7FFF_FFFF_FFFF

// KERNEL_BASE is where the kernel heap begins, in the top PML4 slot
// (511) of the kernel half. The kernel half's PML4 entries, from
// KERNEL_PML4_START up, are shared, byte-identical, across every
// address space (spec §3's VMM invariant).
const KERNEL_BASE = 0xFFFF_FFFF_8000_0000

// PML4 index at which the kernel half begins. Entries 0..255 are user,
// 256..511 are kernel, splitting the 48-bit virtual address space evenly.
const KERNEL_PML4_START = 256

// DefaultUserStackSize is the size of the stack the loader allocates for
// a freshly exec'd image.
const DefaultUserStackSize = 64 * 1024
