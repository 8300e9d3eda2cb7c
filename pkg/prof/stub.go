//go:build !profile

package prof

import "io"

// Enabled reports whether profiling is compiled in.
const Enabled = false

// Errors are declared for API compatibility; the stubs never return them.
var (
	ErrActive         error
	ErrInvalidProfile error
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

// Session is a no-op without the "profile" tag.
type Session struct{}

// Start is a no-op without the "profile" tag.
func Start(_, _ string) (*Session, error) {
	return &Session{}, nil
}

// Stop is a no-op without the "profile" tag.
func (*Session) Stop() error {
	return nil
}

// Active always returns false without the "profile" tag.
func Active() bool {
	return false
}

// Write is a no-op without the "profile" tag.
func Write(_ Profile, _ io.Writer) error {
	return nil
}
