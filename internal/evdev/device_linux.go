//go:build linux

package evdev

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl request numbers from linux/input.h.
func eviocgabs(abs uint16) uint {
	// _IOR('E', 0x40 + abs, struct input_absinfo)
	return 2<<30 | uint(unsafe.Sizeof(AbsInfo{}))<<16 | 'E'<<8 | (0x40 + uint(abs))
}

func eviocgname(size int) uint {
	// _IOC(_IOC_READ, 'E', 0x06, len)
	return 2<<30 | uint(size)<<16 | 'E'<<8 | 0x06
}

func ioctlPtr(fd int, req uint, p unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(p))
	if errno != 0 {
		return errno
	}
	return nil
}

// ReadAbsInfo queries the ranges of every known absolute axis.
func ReadAbsInfo(fd int) map[uint16]AbsInfo {
	out := make(map[uint16]AbsInfo, len(AbsCodes))
	for _, code := range AbsCodes {
		var ai AbsInfo
		if err := ioctlPtr(fd, eviocgabs(code), unsafe.Pointer(&ai)); err == nil {
			out[code] = ai
		}
	}
	return out
}

func readName(fd int) string {
	buf := make([]byte, 256)
	if err := ioctlPtr(fd, eviocgname(len(buf)), unsafe.Pointer(&buf[0])); err != nil {
		return ""
	}
	for i, c := range buf {
		if c == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}

// FindJoystick returns the first /dev/input/by-id event node of a joystick.
func FindJoystick() (string, error) {
	matches, err := filepath.Glob("/dev/input/by-id/*-event-joystick")
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", errors.New("no joystick found under /dev/input/by-id")
	}
	return matches[0], nil
}

// Run opens the device and reads events until ctx is canceled, reopening it
// after errors.
func (d *Device) Run(ctx context.Context) {
	for ctx.Err() == nil {
		err := d.session(ctx)
		if ctx.Err() != nil {
			return
		}
		d.logger.Warn("gamepad unavailable", "path", d.path, "error", err)

		t := time.NewTimer(d.reconnect)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// session reads from one open instance of the device.
func (d *Device) session(ctx context.Context) error {
	path := d.path
	if path == "" {
		p, err := FindJoystick()
		if err != nil {
			return err
		}
		path = p
	}

	f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	fd := int(f.Fd())
	name := readName(fd)
	d.name.Store(&name)
	d.dec.Store(NewDecoder(ReadAbsInfo(fd)))

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return fmt.Errorf("epoll_ctl_add fd=%d: %w", fd, err)
	}

	d.connected.Store(true)
	defer d.connected.Store(false)
	d.logger.Info("gamepad opened", "path", path, "name", name)

	epollEvents := make([]unix.EpollEvent, 1)
	buf := make([]byte, EventSize*64)
	for ctx.Err() == nil {
		// Short timeout so cancellation is noticed without a wakeup fd.
		n, err := unix.EpollWait(epfd, epollEvents, 100)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}
		if n == 0 {
			continue
		}
		if epollEvents[0].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			return fmt.Errorf("device error/hangup: %s", path)
		}

		nr, err := unix.Read(fd, buf)
		if err != nil {
			if err == unix.EAGAIN {
				continue
			}
			return fmt.Errorf("read from %s: %w", path, err)
		}
		dec := d.dec.Load()
		for off := 0; off+EventSize <= nr; off += EventSize {
			ev, err := ParseEvent(buf[off : off+EventSize])
			if err != nil {
				continue
			}
			dec.Apply(ev)
		}
	}
	return nil
}
