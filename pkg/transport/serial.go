package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is used when none is configured. USB CDC ignores it.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default capacity of the Lines channel.
	DefaultBufferSize = 100
)

// SerialPort describes a serial port on the host.
type SerialPort struct {
	Name        string
	Description string
}

// Ports lists the serial ports of the host.
func Ports() ([]SerialPort, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	result := make([]SerialPort, 0, len(names))
	for _, name := range names {
		result = append(result, SerialPort{Name: name, Description: name})
	}
	return result, nil
}

// Link is a host side connection to a board. Lines received from the board
// are delivered on Lines with their "\r\n" framing removed.
type Link struct {
	port     string
	baudRate int
	logger   *log.Logger

	conn      io.ReadWriteCloser
	lines     chan string
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
}

// NewLink prepares a link to port. Zero values select the defaults.
func NewLink(port string, baudRate, bufSize int, logger *log.Logger) *Link {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Link{
		port:     port,
		baudRate: baudRate,
		logger:   logger.WithPrefix("link"),
		lines:    make(chan string, bufSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Connect opens the serial port and starts reading lines.
func (l *Link) Connect() error {
	conn, err := serial.Open(l.port, &serial.Mode{BaudRate: l.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", l.port, err)
	}
	if err := l.Attach(conn); err != nil {
		conn.Close()
		return err
	}
	return nil
}

// Attach uses conn instead of opening the serial port, e.g. a pseudo-terminal.
func (l *Link) Attach(conn io.ReadWriteCloser) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connected {
		return errors.New("already connected")
	}
	l.conn = conn
	l.connected = true
	go l.readLines(conn)
	return nil
}

// Close closes the connection and the Lines channel.
func (l *Link) Close() error {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return nil
	}
	l.cancel()
	err := l.conn.Close()
	l.conn = nil
	l.connected = false
	l.mu.Unlock()

	<-l.done
	if err != nil {
		return fmt.Errorf("error closing serial port: %w", err)
	}
	return nil
}

// IsConnected reports whether the link is open.
func (l *Link) IsConnected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// Lines returns the channel of received lines. It is closed when the link
// closes or the board hangs up.
func (l *Link) Lines() <-chan string {
	return l.lines
}

// Send writes one command line.
func (l *Link) Send(cmd string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.connected {
		return errors.New("not connected")
	}
	if _, err := io.WriteString(l.conn, cmd+"\r\n"); err != nil {
		return fmt.Errorf("failed to send %q: %w", cmd, err)
	}
	return nil
}

func (l *Link) readLines(conn io.Reader) {
	defer close(l.done)
	defer close(l.lines)

	scanner := bufio.NewScanner(conn)
	scanner.Split(ScanLines)
	for scanner.Scan() {
		select {
		case l.lines <- scanner.Text():
		case <-l.ctx.Done():
			return
		default:
			l.logger.Warn("lines channel full, dropping line")
		}
	}
	if err := scanner.Err(); err != nil && l.ctx.Err() == nil {
		l.logger.Error("read failed", "err", err)
	}
}

// ScanLines is a bufio.SplitFunc that splits on '\r' or '\n' and drops empty
// lines.
func ScanLines(data []byte, atEOF bool) (int, []byte, error) {
	start := 0
	for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
		start++
	}
	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		return start + i + 1, data[start : start+i], nil
	}
	if atEOF && start < len(data) {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}
