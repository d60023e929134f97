//go:build windows

package eventloop

import (
	"time"

	"golang.org/x/sys/windows"
)

// iocpBackend adapts Windows' completion-model I/O (spec §4.7's
// "completion model" branch) to the readiness-shaped poller interface:
// each registration associates fd with the completion port as its
// completion key, and a queued completion is reported as a ready event
// for whichever direction last registered it.
type iocpBackend struct {
	port windows.Handle
	dirs map[int]Direction
}

func NewIOCPBackend() (*iocpBackend, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	return &iocpBackend{port: port, dirs: make(map[int]Direction)}, nil
}

func (b *iocpBackend) Register(fd int, dir Direction) error {
	b.dirs[fd] = dir
	_, err := windows.CreateIoCompletionPort(windows.Handle(fd), b.port, uintptr(fd), 0)
	return err
}

func (b *iocpBackend) Deregister(fd int) error {
	delete(b.dirs, fd)
	return nil // Windows has no IOCP disassociate primitive; stale keys are simply ignored.
}

func (b *iocpBackend) Wait(timeout time.Duration) ([]readyFD, error) {
	var bytes uint32
	var key uintptr
	var overlapped *windows.Overlapped
	ms := uint32(timeout / time.Millisecond)

	err := windows.GetQueuedCompletionStatus(b.port, &bytes, &key, &overlapped, ms)
	if err != nil {
		if err == windows.WAIT_TIMEOUT {
			return nil, nil
		}
		return nil, err
	}

	fd := int(key)
	dir := b.dirs[fd]
	return []readyFD{{
		fd:       fd,
		readable: dir == In,
		writable: dir == Out,
	}}, nil
}

func (b *iocpBackend) Close() error {
	return windows.CloseHandle(b.port)
}
