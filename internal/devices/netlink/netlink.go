// Package netlink is a devices.MulticoreDevice carrying multicore
// bridge frames over a plain TCP connection between two appliance
// processes, for deployments where the "peer core" is a second
// process (or host) rather than a literal second CPU core. Framing
// mirrors the network package's connection-state discipline: one
// persistent connection, a dedicated reader goroutine, mutex-guarded
// state.
package netlink

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

// Config selects the link's role: Listen accepts a single inbound
// connection, Peer dials out. Exactly one must be set.
type Config struct {
	Listen string
	Peer   string
}

// Link is a TCP-backed multicore peer link. Each frame crosses the
// wire as a 4-byte big-endian length prefix followed by that many
// payload bytes - the multicore manager's own header is carried
// opaquely inside that payload.
type Link struct {
	cfg Config
	log *logger.Logger

	mu       sync.Mutex
	conn     net.Conn
	listener net.Listener
	handler  func(data []byte)
	stopped  bool
}

// New creates a Link. log may be nil.
func New(cfg Config, log *logger.Logger) *Link {
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	return &Link{cfg: cfg, log: log.WithComponent("netlink")}
}

func (l *Link) Init() error { return nil }

func (l *Link) Deinit() error { return nil }

// Start establishes the connection (accepting or dialing per Config)
// and spawns the reader goroutine. It blocks until the connection is
// established.
func (l *Link) Start() error {
	var conn net.Conn
	var err error

	switch {
	case l.cfg.Listen != "":
		ln, lerr := net.Listen("tcp", l.cfg.Listen)
		if lerr != nil {
			return fmt.Errorf("netlink: listening on %s: %w", l.cfg.Listen, lerr)
		}
		l.mu.Lock()
		l.listener = ln
		l.mu.Unlock()
		conn, err = ln.Accept()
		if err != nil {
			return fmt.Errorf("netlink: accepting peer connection: %w", err)
		}
	case l.cfg.Peer != "":
		conn, err = net.DialTimeout("tcp", l.cfg.Peer, 10*time.Second)
		if err != nil {
			return fmt.Errorf("netlink: dialing peer %s: %w", l.cfg.Peer, err)
		}
	default:
		return fmt.Errorf("netlink: neither Listen nor Peer configured")
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	go l.readLoop(conn)
	l.log.Info("multicore peer link established", logger.String("remote", conn.RemoteAddr().String()))
	return nil
}

func (l *Link) Stop() error {
	l.mu.Lock()
	l.stopped = true
	conn := l.conn
	ln := l.listener
	l.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if ln != nil {
		_ = ln.Close()
	}
	return nil
}

// SetReceiveHandler installs the callback invoked, from the reader
// goroutine, with each frame's payload.
func (l *Link) SetReceiveHandler(handler func(data []byte)) {
	l.mu.Lock()
	l.handler = handler
	l.mu.Unlock()
}

// Send writes one length-prefixed frame to the peer.
func (l *Link) Send(buf []byte) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("netlink: not connected")
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(buf)))
	if _, err := conn.Write(header); err != nil {
		return fmt.Errorf("netlink: writing frame header: %w", err)
	}
	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("netlink: writing frame payload: %w", err)
	}
	return nil
}

func (l *Link) readLoop(conn net.Conn) {
	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			l.mu.Lock()
			stopped := l.stopped
			l.mu.Unlock()
			if !stopped {
				l.log.Error("multicore peer link read failed", logger.Error(err))
			}
			return
		}
		size := binary.BigEndian.Uint32(header)
		payload := make([]byte, size)
		if _, err := io.ReadFull(conn, payload); err != nil {
			l.log.Error("multicore peer link payload read failed", logger.Error(err))
			return
		}
		l.mu.Lock()
		h := l.handler
		l.mu.Unlock()
		if h != nil {
			h(payload)
		}
	}
}
