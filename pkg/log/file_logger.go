package log

import (
	"fmt"
	"os"
	"sync"
)

// FileLogger appends CBOR-encoded events to a protocol log file. With a size
// limit the file is rotated: once it reaches the limit it is renamed to
// <path>.1, replacing any older backup, and a fresh file is started.
type FileLogger struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	file    *os.File
	size    int64
	closed  bool
}

// NewFileLogger opens path for appending, creating it with mode 0644. The
// file grows without limit.
func NewFileLogger(path string) (*FileLogger, error) {
	return NewRotatingFileLogger(path, 0)
}

// NewRotatingFileLogger opens path like NewFileLogger and rotates it once it
// holds maxSize bytes. A maxSize of zero or less disables rotation.
func NewRotatingFileLogger(path string, maxSize int64) (*FileLogger, error) {
	l := &FileLogger{path: path, maxSize: maxSize}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

// BackupPath returns the path a rotated log is moved to.
func BackupPath(path string) string {
	return path + ".1"
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	l.file, l.size = f, info.Size()
	return nil
}

func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(l.path, BackupPath(l.path)); err != nil {
		return fmt.Errorf("rotate %s: %w", l.path, err)
	}
	return l.open()
}

// Log writes the event. Events that cannot be encoded or written are
// dropped, as are events logged after Close. A failed rotation closes the
// logger.
func (l *FileLogger) Log(event Event) {
	data, err := EncodeEvent(event)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if l.maxSize > 0 && l.size > 0 && l.size+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			l.closed = true
			return
		}
	}
	n, _ := l.file.Write(data)
	l.size += int64(n)
}

// Close closes the file. Calling it again is a no-op.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
