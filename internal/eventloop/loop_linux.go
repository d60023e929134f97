//go:build linux

package eventloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollBackend is the readiness-model poller for linux, grounded on the
// same golang.org/x/sys dependency the retrieval pack's WebAssembly
// runtimes (wagon/wazero) use for their own OS-facing primitives.
type epollBackend struct {
	epfd int
	dirs map[int]Direction
}

func NewEpollBackend() (*epollBackend, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &epollBackend{epfd: fd, dirs: make(map[int]Direction)}, nil
}

func (b *epollBackend) eventMask(dir Direction) uint32 {
	if dir == Out {
		return unix.EPOLLOUT
	}
	return unix.EPOLLIN
}

func (b *epollBackend) Register(fd int, dir Direction) error {
	ev := unix.EpollEvent{Events: b.eventMask(dir) | unix.EPOLLIN | unix.EPOLLOUT, Fd: int32(fd)}
	op := unix.EPOLL_CTL_ADD
	if _, exists := b.dirs[fd]; exists {
		op = unix.EPOLL_CTL_MOD
	}
	b.dirs[fd] = dir
	return unix.EpollCtl(b.epfd, op, fd, &ev)
}

func (b *epollBackend) Deregister(fd int) error {
	delete(b.dirs, fd)
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (b *epollBackend) Wait(timeout time.Duration) ([]readyFD, error) {
	events := make([]unix.EpollEvent, 64)
	ms := int(timeout / time.Millisecond)
	if ms <= 0 && timeout > 0 {
		ms = 1
	}
	n, err := unix.EpollWait(b.epfd, events, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]readyFD, 0, n)
	for i := 0; i < n; i++ {
		e := events[i]
		out = append(out, readyFD{
			fd:       int(e.Fd),
			readable: e.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			writable: e.Events&unix.EPOLLOUT != 0,
		})
	}
	return out, nil
}

func (b *epollBackend) Close() error {
	return unix.Close(b.epfd)
}
