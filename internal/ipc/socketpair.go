package ipc

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// SocketPair is a connected pair of stream sockets: Parent stays with the
// runner, Child is handed to the spawned component process as an
// ExtraFiles entry (§3: components adopt fd 10 for messages, fd 11
// for state).
type SocketPair struct {
	Parent *os.File
	Child  *os.File
}

// NewSocketPair creates an AF_UNIX/SOCK_STREAM socketpair and puts the
// parent side into non-blocking mode; the child side is left blocking
// since the component process manages it on its own terms.
func NewSocketPair(name string) (*SocketPair, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("ipc: socketpair %s: %w", name, err)
	}
	if err := SetNonblocking(fds[0]); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, err
	}
	return &SocketPair{
		Parent: os.NewFile(uintptr(fds[0]), name+"-parent"),
		Child:  os.NewFile(uintptr(fds[1]), name+"-child"),
	}, nil
}

func (p *SocketPair) Close() error {
	var errs []error
	if err := p.Parent.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.Child.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("ipc: close socketpair: %v", errs)
	}
	return nil
}

// DevNullFiles returns n freshly opened handles onto /dev/null, used to
// pad exec.Cmd.ExtraFiles so that a component's data and state sockets
// land on the fixed fd numbers the component contract promises (fd 10
// and fd 11): ExtraFiles are assigned sequentially starting at fd 3, so
// 7 filler entries occupy fd 3..9 before the two real sockets.
func DevNullFiles(n int) ([]*os.File, error) {
	files := make([]*os.File, 0, n)
	for i := 0; i < n; i++ {
		f, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			for _, open := range files {
				open.Close()
			}
			return nil, fmt.Errorf("ipc: open %s: %w", os.DevNull, err)
		}
		files = append(files, f)
	}
	return files, nil
}

// ExtraFilesFor builds the exec.Cmd.ExtraFiles slice that lands dataSock
// on fd 10 and stateSock on fd 11 in the child process.
func ExtraFilesFor(dataSock, stateSock *os.File) ([]*os.File, error) {
	const fillerCount = 7 // fd 3..9
	filler, err := DevNullFiles(fillerCount)
	if err != nil {
		return nil, err
	}
	return append(filler, dataSock, stateSock), nil
}
