package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/avlgate/internal/protocol/session"
)

const (
	DefaultListenAddr = ":5027"
	// DefaultReadBufferBytes holds the largest accepted packet in one read.
	DefaultReadBufferBytes = session.DefaultMaxPacketBytes
	DefaultWriteTimeout    = 10 * time.Second
)

// Config defines the tracker listener.
type Config struct {
	ListenAddr string
	// ReadBufferBytes sizes each socket read. In single_read mode it is raised
	// to Session.MaxPacketBytes so one delivered packet is never split.
	ReadBufferBytes int
	// ReadTimeout closes connections idle for longer. Zero disables it.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Session      session.Config
}

// DefaultConfig returns the listener defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      DefaultListenAddr,
		ReadBufferBytes: DefaultReadBufferBytes,
		WriteTimeout:    DefaultWriteTimeout,
		Session:         session.DefaultConfig(),
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	c.Session = c.Session.WithDefaults()
	if c.ReadBufferBytes <= 0 {
		c.ReadBufferBytes = c.Session.MaxPacketBytes
	}
	if c.Session.Reassembly == session.ReassemblySingleRead && c.ReadBufferBytes < c.Session.MaxPacketBytes {
		c.ReadBufferBytes = c.Session.MaxPacketBytes
	}
	return c
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("gateway: listen addr is required")
	}
	if c.ReadBufferBytes < 0 {
		return fmt.Errorf("gateway: read buffer bytes must not be negative")
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("gateway: timeouts must not be negative")
	}
	return c.Session.Validate()
}
