package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"tools.zach/dev/cordsync/internal/paths"
)

// ///////////////////////////////////////////////
// PID Management
// ///////////////////////////////////////////////

// pidLock is the held PID file. The lock lives as long as f stays open.
type pidLock struct {
	path  string
	token string
	f     *os.File
}

// acquirePID opens the PID file, locks it, and writes "PID:TOKEN". The
// token lets release remove the file only if this instance still owns it.
func acquirePID(dir paths.DataDir) (*pidLock, error) {
	f, err := os.OpenFile(dir.PID(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock PID file: %w", err)
	}

	l := &pidLock{path: dir.PID(), token: uuid.NewString(), f: f}
	if err := f.Truncate(0); err != nil {
		l.release()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d:%s", os.Getpid(), l.token); err != nil {
		l.release()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return l, nil
}

// release unlocks and closes the PID file, then removes it if the stored
// token is still ours.
func (l *pidLock) release() {
	if l.f != nil {
		_ = unlockFile(l.f)
		l.f.Close()
		l.f = nil
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	if _, token, ok := strings.Cut(string(data), ":"); ok && token == l.token {
		os.Remove(l.path)
	}
}

// runningPID reports whether another instance holds the PID lock. When the
// lock is free any leftover file is stale and is removed.
func runningPID(dir paths.DataDir) (alive bool, pid int) {
	f, err := os.OpenFile(dir.PID(), os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}

	if lockErr := lockFile(f); lockErr != nil {
		data, _ := os.ReadFile(dir.PID())
		f.Close()
		head, _, _ := strings.Cut(string(data), ":")
		if p, convErr := strconv.Atoi(head); convErr == nil {
			return true, p
		}
		return true, 0
	}

	_ = unlockFile(f)
	f.Close()
	os.Remove(dir.PID())
	return false, 0
}
