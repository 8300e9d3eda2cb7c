//go:build profile

package prof

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
)

// Enabled reports whether profiling is compiled in.
const Enabled = true

var (
	// ErrActive indicates a session is already running.
	ErrActive = errors.New("profile session already active")

	// ErrInvalidProfile indicates an unknown snapshot profile.
	ErrInvalidProfile = errors.New("invalid profile")
)

// Profile names a runtime snapshot profile.
type Profile string

const (
	ProfileHeap      Profile = "heap"
	ProfileAllocs    Profile = "allocs"
	ProfileGoroutine Profile = "goroutine"
	ProfileBlock     Profile = "block"
	ProfileMutex     Profile = "mutex"
)

func (p Profile) String() string {
	return string(p)
}

var (
	mutex  sync.Mutex
	active bool
)

// Session is a profiling run started by [Start].
type Session struct {
	cpu      *os.File
	heapPath string
}

// Start begins a session. A non-empty cpuPath receives a CPU profile; a
// non-empty heapPath receives a heap snapshot when the session stops.
func Start(cpuPath, heapPath string) (*Session, error) {
	mutex.Lock()
	defer mutex.Unlock()

	if active {
		return nil, ErrActive
	}
	s := &Session{heapPath: heapPath}
	if cpuPath != "" {
		f, err := os.Create(cpuPath)
		if err != nil {
			return nil, fmt.Errorf("prof: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("prof: %w", err)
		}
		s.cpu = f
	}
	active = true
	return s, nil
}

// Stop ends the session and writes its profiles. Stopping twice is a no-op.
func (s *Session) Stop() error {
	mutex.Lock()
	defer mutex.Unlock()

	if s == nil || !active {
		return nil
	}
	active = false

	var errs []error
	if s.cpu != nil {
		pprof.StopCPUProfile()
		errs = append(errs, s.cpu.Close())
		s.cpu = nil
	}
	if s.heapPath != "" {
		runtime.GC()
		errs = append(errs, writeFile(ProfileHeap, s.heapPath))
		s.heapPath = ""
	}
	return errors.Join(errs...)
}

// Active reports whether a session is running.
func Active() bool {
	mutex.Lock()
	defer mutex.Unlock()
	return active
}

// Write writes a snapshot profile to w in the binary pprof format.
func Write(profile Profile, w io.Writer) error {
	p := pprof.Lookup(string(profile))
	if p == nil {
		return fmt.Errorf("prof: %q: %w", profile, ErrInvalidProfile)
	}
	return p.WriteTo(w, 0)
}

func writeFile(profile Profile, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("prof: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return Write(profile, f)
}
