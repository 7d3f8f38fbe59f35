package lstore

import (
	"os"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// flock acquires an exclusive advisory lock on the lock file.
func flock(f *os.File) error {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == nil {
		return nil
	} else if errno, ok := err.(syscall.Errno); ok && (errno == syscall.EWOULDBLOCK || errno == syscall.EAGAIN) { // linux & unix
		return ErrWriteByOther
	}
	return errors.Wrap(err, "flock failed: unknown error")
}

// waitflock retries flock until it succeeds or timeout elapses. A zero
// timeout tries once.
func waitflock(f *os.File, timeout time.Duration) error {
	start := time.Now()
	for {
		err := flock(f)
		if !errors.Is(err, ErrWriteByOther) {
			return err
		}
		if time.Since(start) >= timeout {
			return err
		}
		// Wait for a bit and try again.
		time.Sleep(50 * time.Millisecond)
	}
}

// funlock releases an advisory lock on a file descriptor.
func funlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
