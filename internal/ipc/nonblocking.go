// Package ipc implements the non-blocking, length-prefixed framing the
// control thread uses to talk to hosted components over fd 10/11 (§3,
// §4.2, §4.3, §5: "All socket reads and writes on the control thread are
// non-blocking; WouldBlock is treated as 'no more data now'"), plus the
// OS-level mechanisms (socketpair, SIGCONT, scheduling class, CPU affinity)
// that back the scheduler and background worker.
package ipc

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/caldera-rt/runner/internal/core"
	"github.com/caldera-rt/runner/internal/wire"
)

// FrameReader reads length-prefixed frames from a non-blocking fd, stitching
// together partial reads across periods. Not safe for concurrent use from
// more than one goroutine — the control thread owns it exclusively.
type FrameReader struct {
	fd  int
	buf []byte
}

// NewFrameReader wraps fd, which must already be in non-blocking mode.
func NewFrameReader(fd int) *FrameReader {
	return &FrameReader{fd: fd}
}

// Next returns an already-buffered complete frame without a syscall if
// there is one; otherwise it attempts one non-blocking read syscall and
// then tries to extract a frame from the buffer. It returns core.ErrWouldBlock
// when no complete frame is available yet (§4.2: "WouldBlock
// terminates that component's batch early").
func (r *FrameReader) Next() ([]byte, error) {
	if frame, ok := r.tryExtract(); ok {
		return frame, nil
	}

	scratch := make([]byte, 64*1024)
	n, err := unix.Read(r.fd, scratch)
	if n > 0 {
		r.buf = append(r.buf, scratch[:n]...)
	}
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			if frame, ok := r.tryExtract(); ok {
				return frame, nil
			}
			return nil, core.ErrWouldBlock
		}
		return nil, err
	}
	if n == 0 {
		return nil, os.ErrClosed
	}

	if frame, ok := r.tryExtract(); ok {
		return frame, nil
	}
	return nil, core.ErrWouldBlock
}

func (r *FrameReader) tryExtract() ([]byte, bool) {
	if len(r.buf) < wire.LengthPrefixSize {
		return nil, false
	}
	length, err := wire.DecodeLength(r.buf)
	if err != nil {
		return nil, false
	}
	total := wire.LengthPrefixSize + int(length)
	if len(r.buf) < total {
		return nil, false
	}
	body := make([]byte, length)
	copy(body, r.buf[wire.LengthPrefixSize:total])
	r.buf = r.buf[total:]
	return body, true
}

// FrameWriter writes length-prefixed frames to a non-blocking fd.
type FrameWriter struct {
	fd int
}

func NewFrameWriter(fd int) *FrameWriter {
	return &FrameWriter{fd: fd}
}

// WriteFrame writes one already-framed buffer (as produced by
// wire.Encode/wire.EncodeFrame). A partial write due to EAGAIN is reported
// as core.ErrWouldBlock; per §4.2/§4.3 the caller treats this as transient
// and moves on rather than retrying within the period.
func (w *FrameWriter) WriteFrame(frame []byte) error {
	off := 0
	for off < len(frame) {
		n, err := unix.Write(w.fd, frame[off:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return core.ErrWouldBlock
			}
			return err
		}
		off += n
	}
	return nil
}

// SetNonblocking puts fd into non-blocking mode.
func SetNonblocking(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("ipc: set nonblocking: %w", err)
	}
	return nil
}
