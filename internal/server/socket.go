package server

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

const listenBacklog = 10

// listenRaw opens a non-blocking, close-on-exec IPv4 or IPv6 listening
// socket the way original_source/src/http-server.c's main loop does:
// socket(SOCK_STREAM|SOCK_CLOEXEC), SO_REUSEADDR, bind, listen(backlog=10).
func listenRaw(ipv4, ipv6 string, port int) (fd4, fd6 int, err error) {
	fd4, fd6 = -1, -1
	defer func() {
		if err != nil {
			if fd4 >= 0 {
				unix.Close(fd4)
			}
			if fd6 >= 0 {
				unix.Close(fd6)
			}
		}
	}()

	if ipv4 != "" {
		fd4, err = listenOne(unix.AF_INET, ipv4, port)
		if err != nil {
			return -1, -1, fmt.Errorf("server: ipv4 listen: %w", err)
		}
	}
	if ipv6 != "" {
		fd6, err = listenOne(unix.AF_INET6, ipv6, port)
		if err != nil {
			return -1, -1, fmt.Errorf("server: ipv6 listen: %w", err)
		}
	}
	if fd4 < 0 && fd6 < 0 {
		return -1, -1, fmt.Errorf("server: neither IPv4 nor IPv6 bind address configured")
	}
	return fd4, fd6, nil
}

func listenOne(family int, addr string, port int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	ip := net.ParseIP(addr)
	if ip == nil {
		unix.Close(fd)
		return -1, fmt.Errorf("invalid bind address %q", addr)
	}

	var sa unix.Sockaddr
	if family == unix.AF_INET {
		var a [4]byte
		copy(a[:], ip.To4())
		sa = &unix.SockaddrInet4{Port: port, Addr: a}
	} else {
		var a [16]byte
		copy(a[:], ip.To16())
		sa = &unix.SockaddrInet6{Port: port, Addr: a}
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// acceptNonBlocking accepts a connection from a listening socket, setting
// the accepted socket non-blocking and close-on-exec in the same call
// (accept4), returning the remote address's 16-byte form (IPv4 addresses
// are stored in the low 4 bytes for the per-IP connection cap, mirroring
// how the IPv4/IPv6 dual-stack tracking is done elsewhere in the server).
func acceptNonBlocking(listenFd int) (fd int, remote string, remoteIP [16]byte, err error) {
	nfd, sa, err := unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, "", remoteIP, err
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		copy(remoteIP[:4], a.Addr[:])
		remote = fmt.Sprintf("%s:%d", net.IP(a.Addr[:]).String(), a.Port)
	case *unix.SockaddrInet6:
		copy(remoteIP[:], a.Addr[:])
		remote = fmt.Sprintf("[%s]:%d", net.IP(a.Addr[:]).String(), a.Port)
	}
	return nfd, remote, remoteIP, nil
}

// sendCannedAndClose writes a fixed byte literal directly to a raw fd and
// closes it without going through the write-buffer chain, for the
// accept-time 503 the server sends when connection caps are exhausted
// (original_source's send_response_nocopy path for responses that never
// need retrying).
func sendCannedAndClose(fd int, body []byte) {
	_, _ = unix.Write(fd, body)
	_ = unix.Close(fd)
}
