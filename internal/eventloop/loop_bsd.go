//go:build darwin || freebsd || netbsd || openbsd

package eventloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueueBackend is the readiness-model poller for BSD-family kernels
// (spec §4.7's "readiness model" branch on platforms without epoll).
type kqueueBackend struct {
	kq int
}

func NewKqueueBackend() (*kqueueBackend, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueueBackend{kq: fd}, nil
}

func (b *kqueueBackend) filterFor(dir Direction) int16 {
	if dir == Out {
		return unix.EVFILT_WRITE
	}
	return unix.EVFILT_READ
}

func (b *kqueueBackend) Register(fd int, dir Direction) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE},
	}
	_, err := unix.Kevent(b.kq, changes, nil, nil)
	return err
}

func (b *kqueueBackend) Deregister(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, err := unix.Kevent(b.kq, changes, nil, nil)
	return err
}

func (b *kqueueBackend) Wait(timeout time.Duration) ([]readyFD, error) {
	events := make([]unix.Kevent_t, 64)
	ts := unix.NsecToTimespec(int64(timeout))
	n, err := unix.Kevent(b.kq, nil, events, &ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	byFD := make(map[int]*readyFD, n)
	for i := 0; i < n; i++ {
		e := events[i]
		fd := int(e.Ident)
		r, ok := byFD[fd]
		if !ok {
			r = &readyFD{fd: fd}
			byFD[fd] = r
		}
		switch e.Filter {
		case unix.EVFILT_READ:
			r.readable = true
		case unix.EVFILT_WRITE:
			r.writable = true
		}
	}
	out := make([]readyFD, 0, len(byFD))
	for _, r := range byFD {
		out = append(out, *r)
	}
	return out, nil
}

func (b *kqueueBackend) Close() error {
	return unix.Close(b.kq)
}
