package session

import (
	"fmt"
	"strings"
)

// Reassembly selects how the inbound buffer is split into data messages.
type Reassembly string

const (
	// ReassemblySingleRead treats each read that reaches the minimum header
	// size as exactly one message and discards the buffer afterwards.
	ReassemblySingleRead Reassembly = "single_read"
	// ReassemblyLengthPrefixed waits for the declared data length plus CRC and
	// keeps any trailing bytes for the next message.
	ReassemblyLengthPrefixed Reassembly = "length_prefixed"
)

const DefaultMaxPacketBytes = 64 * 1024

// Config defines per-session protocol behavior.
type Config struct {
	Reassembly     Reassembly
	VerifyCRC      bool
	MaxPacketBytes int
}

// DefaultConfig returns single_read reassembly with CRC checks off.
func DefaultConfig() Config {
	return Config{
		Reassembly:     ReassemblySingleRead,
		VerifyCRC:      false,
		MaxPacketBytes: DefaultMaxPacketBytes,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(string(c.Reassembly)) == "" {
		c.Reassembly = def.Reassembly
	}
	if c.MaxPacketBytes <= 0 {
		c.MaxPacketBytes = def.MaxPacketBytes
	}
	return c
}

// Validate rejects unknown reassembly modes and non-positive limits.
func (c Config) Validate() error {
	switch c.Reassembly {
	case ReassemblySingleRead, ReassemblyLengthPrefixed:
	default:
		return fmt.Errorf("session: unknown reassembly mode %q", c.Reassembly)
	}
	if c.MaxPacketBytes <= 0 {
		return fmt.Errorf("session: max packet bytes must be positive")
	}
	return nil
}
