// Package prof profiles runs of the simulator.
//
// The package is compiled in two flavors selected by the "profile" build
// tag. With the tag, [Start] records a CPU profile for the duration of a
// [Session] and writes a heap snapshot when the session stops:
//
//	go run -tags profile ./cmd/pic32usb-sim -cpuprofile cpu.prof -memprofile heap.prof
//
// Without the tag every function is a no-op and [Enabled] is false, so the
// simulator keeps its profiling flags without linking runtime/pprof.
//
// Snapshot profiles other than the heap are available through [Write]:
//
//	prof.Write(prof.ProfileGoroutine, os.Stdout)
//
// Only one session may run at a time; a second [Start] returns
// [ErrActive].
package prof
