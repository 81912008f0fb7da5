package ipc

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/caldera-rt/runner/internal/core"
)

// UDPSocket is the runner's single shared ingress/egress socket for
// Address(SocketAddr) endpoints (§6): one datagram carries exactly
// one framed Message, using the same 4-byte BE length prefix as fd 10.
type UDPSocket struct {
	fd int
}

// NewUDPSocket binds a non-blocking UDP socket to addr ("ip:port").
func NewUDPSocket(addr string) (*UDPSocket, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("ipc: udp bind address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("ipc: udp bind port %q: %w", portStr, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ip = net.IPv4zero
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("ipc: udp bind address %q: only IPv4 supported", addr)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, fmt.Errorf("ipc: udp socket: %w", err)
	}
	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip4)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ipc: udp bind %s: %w", addr, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ipc: udp set nonblocking: %w", err)
	}
	return &UDPSocket{fd: fd}, nil
}

// RecvFrom attempts one non-blocking recvfrom. It returns core.ErrWouldBlock
// when no datagram is waiting.
func (u *UDPSocket) RecvFrom() (addr string, payload []byte, err error) {
	buf := make([]byte, 64*1024)
	n, from, err := unix.Recvfrom(u.fd, buf, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return "", nil, core.ErrWouldBlock
		}
		return "", nil, fmt.Errorf("ipc: udp recvfrom: %w", err)
	}
	return sockaddrString(from), buf[:n], nil
}

// SendTo sends one datagram to addr ("ip:port").
func (u *UDPSocket) SendTo(addr string, payload []byte) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("ipc: udp send address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("ipc: udp send port %q: %w", portStr, err)
	}
	ip4 := net.ParseIP(host).To4()
	if ip4 == nil {
		return fmt.Errorf("ipc: udp send address %q: only IPv4 supported", addr)
	}
	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip4)

	if err := unix.Sendto(u.fd, payload, 0, sa); err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return core.ErrWouldBlock
		}
		return fmt.Errorf("ipc: udp sendto %s: %w", addr, err)
	}
	return nil
}

func (u *UDPSocket) Close() error {
	return unix.Close(u.fd)
}

// LocalAddr returns the socket's bound address, resolving an ephemeral
// ":0" port to the one the kernel actually assigned.
func (u *UDPSocket) LocalAddr() string {
	sa, err := unix.Getsockname(u.fd)
	if err != nil {
		return ""
	}
	return sockaddrString(sa)
}

func sockaddrString(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(v.Addr[:])
		return net.JoinHostPort(ip.String(), strconv.Itoa(v.Port))
	default:
		return ""
	}
}
