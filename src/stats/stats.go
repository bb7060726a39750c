// Package stats implements lightweight instrumentation counters. No
// other kernel package uses them, and no device exposes them. The
// teacher gates these counters behind compile-time constants backed by
// a forked runtime's RDTSC intrinsic (runtime.Rdtsc); stock Go exposes
// no cycle counter, so Cycles_t measures wall-clock nanoseconds via
// time.Now() instead, and the Enabled/Timing switches are ordinary
// package variables rather than compile-time constants.
package stats

import (
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Enabled toggles Counter_t.Inc. Disabled by default so hot paths pay no
// instrumentation cost unless it is set to true.
var Enabled = false

// Timing toggles Cycles_t.Add.
var Timing = false

// Now returns a monotonic timestamp suitable for feeding Cycles_t.Add;
// stands in for the teacher's RDTSC read.
func Now() uint64 {
	return uint64(time.Now().UnixNano())
}

// Counter_t is an atomically-incremented statistic.
type Counter_t int64

// Cycles_t accumulates elapsed nanoseconds between two Now() calls.
type Cycles_t int64

// Inc increments the counter by one when Enabled.
func (c *Counter_t) Inc() {
	if Enabled {
		atomic.AddInt64((*int64)(c), 1)
	}
}

// Add adds the nanoseconds elapsed since since when Timing is enabled.
func (c *Cycles_t) Add(since uint64) {
	if Timing {
		atomic.AddInt64((*int64)(c), int64(Now()-since))
	}
}

// Get reads the counter's current value.
func (c *Counter_t) Get() int64 { return atomic.LoadInt64((*int64)(c)) }

// Get reads the accumulated nanosecond total.
func (c *Cycles_t) Get() int64 { return atomic.LoadInt64((*int64)(c)) }

// Stats2String renders every Counter_t/Cycles_t field of st into a
// human-readable report, the same reflection-driven format the teacher
// uses for its own stats structs.
func Stats2String(st interface{}) string {
	if !Enabled {
		return ""
	}
	v := reflect.ValueOf(st)
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		switch {
		case strings.HasSuffix(t, "Counter_t"):
			n := v.Field(i).Interface().(Counter_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		case strings.HasSuffix(t, "Cycles_t"):
			n := v.Field(i).Interface().(Cycles_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}
	}
	return s + "\n"
}
