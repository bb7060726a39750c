package kern

import (
	"bytes"
	"strconv"

	"github.com/google/pprof/profile"

	"defs"
	"fdops"
	"proc"
)

// profDevice_t backs the profiling device (spec's D_PROF): opening it
// snapshots the kernel's process and memory counters into a pprof
// profile and serves the gzipped proto wire bytes, the same format
// `go tool pprof` reads straight off a file. One snapshot per open,
// matching /proc-style "read gives you this instant's numbers"
// devices rather than a live stream.
type profDevice_t struct {
	buf []byte
	pos int
}

var _ fdops.Fdops_i = (*profDevice_t)(nil)

// newProfDevice renders k's current state as a pprof profile: one
// sample per scheduling state (READY/RUNNING/BLOCKED/STOPPED) carrying
// that state's process count; the PMM's free, used and reserved byte
// counts at the time of the snapshot go into the profile's comments.
func newProfDevice(k *Kernel_t) *profDevice_t {
	byState := map[proc.Pstate_t]int64{}
	for _, p := range k.procs.Procs() {
		byState[p.GetState()]++
	}
	_, free, used, reserved := k.phys.Stats()

	fn := &profile.Function{ID: 1, Name: "kernel"}
	loc := &profile.Location{ID: 1, Line: []profile.Line{{Function: fn}}}
	sample := func(state string, count int64) *profile.Sample {
		return &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{count},
			Label:    map[string][]string{"state": {state}},
		}
	}
	prof := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "processes", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "snapshot", Unit: "count"},
		Period:     1,
		Function:   []*profile.Function{fn},
		Location:   []*profile.Location{loc},
		Comments: []string{
			"free_bytes=" + strconv.Itoa(free),
			"used_bytes=" + strconv.Itoa(used),
			"reserved_bytes=" + strconv.Itoa(reserved),
		},
		Sample: []*profile.Sample{
			sample("ready", byState[proc.READY]),
			sample("running", byState[proc.RUNNING]),
			sample("blocked", byState[proc.BLOCKED]),
			sample("stopped", byState[proc.STOPPED]),
		},
	}

	var buf bytes.Buffer
	if err := prof.Write(&buf); err != nil {
		return &profDevice_t{}
	}
	return &profDevice_t{buf: buf.Bytes()}
}

func (d *profDevice_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if d.pos >= len(d.buf) {
		return 0, 0
	}
	n, err := dst.Uiowrite(d.buf[d.pos:])
	d.pos += n
	return n, err
}

func (d *profDevice_t) Write(fdops.Userio_i) (int, defs.Err_t) { return 0, defs.EINVAL }
func (d *profDevice_t) Close() defs.Err_t                      { return 0 }
func (d *profDevice_t) Reopen() defs.Err_t                     { return 0 }

// OpenDev resolves /dev/prof to a fresh profDevice_t snapshot; every
// other name falls through to the mounted filesystem.
func (k *Kernel_t) OpenDev(name string) (fdops.Fdops_i, bool) {
	if name == "/dev/prof" {
		return newProfDevice(k), true
	}
	return nil, false
}
