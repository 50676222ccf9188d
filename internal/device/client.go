package device

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/danmuck/avlgate/internal/protocol/avl"
	"github.com/rs/zerolog"
)

var (
	ErrAddressRequired  = errors.New("device: gateway address required")
	ErrIdentityRejected = errors.New("device: identity rejected")
	ErrNotAcknowledged  = errors.New("device: packet not acknowledged")
	ErrUnexpectedReply  = errors.New("device: unexpected handshake reply")
)

type Config struct {
	Address        string
	IMEI           avl.Identity
	Codec          avl.Codec
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	// MaxSendAttempts bounds resends of a zero-acknowledged packet. Zero means one attempt.
	MaxSendAttempts int
	Backoff         BackoffConfig
	Logger          zerolog.Logger
}

// DefaultConfig returns client defaults without an address or IMEI.
func DefaultConfig() Config {
	return Config{
		Codec:           avl.Codec8,
		ConnectTimeout:  5 * time.Second,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		MaxSendAttempts: 5,
		Backoff:         DefaultBackoffConfig(),
		Logger:          zerolog.Nop(),
	}
}

type Client struct {
	cfg Config
	rng *rand.Rand
}

// NewClient validates cfg. It does not dial.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	if _, err := avl.ParseIdentity(cfg.IMEI.String()); err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}
	def := DefaultConfig()
	if cfg.Codec == 0 {
		cfg.Codec = def.Codec
	}
	if !cfg.Codec.Valid() {
		return nil, fmt.Errorf("device: %w", avl.ErrUnsupportedCodec)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Client{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Connect dials the gateway and performs the identity handshake.
func (c *Client) Connect(ctx context.Context) (*Conn, error) {
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return nil, err
	}
	if err := c.handshake(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.cfg.Logger.Debug().Str("imei", c.cfg.IMEI.String()).Str("addr", c.cfg.Address).Msg("device connected")
	return &Conn{conn: conn, cfg: c.cfg, rng: c.rng}, nil
}

func (c *Client) handshake(conn net.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if _, err := conn.Write(avl.EncodeIdentity(c.cfg.IMEI)); err != nil {
		return fmt.Errorf("device: write identity: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	reply := make([]byte, 1)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return fmt.Errorf("device: read identity reply: %w", err)
	}
	switch reply[0] {
	case 0x01:
		return nil
	case 0x00:
		return ErrIdentityRejected
	default:
		return fmt.Errorf("%w: %#x", ErrUnexpectedReply, reply[0])
	}
}

// Conn is an authenticated tracker connection. It is not safe for concurrent use.
type Conn struct {
	conn net.Conn
	cfg  Config
	rng  *rand.Rand
}

// SendPacket writes one data message and returns the acknowledged record count.
func (c *Conn) SendPacket(records []avl.Record) (uint32, error) {
	msg, err := avl.EncodePacket(avl.Packet{Codec: c.cfg.Codec, Records: records})
	if err != nil {
		return 0, fmt.Errorf("device: encode packet: %w", err)
	}
	return c.SendRaw(msg)
}

// SendRaw writes msg as is and reads the acknowledgement.
func (c *Conn) SendRaw(msg []byte) (uint32, error) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if _, err := c.conn.Write(msg); err != nil {
		return 0, fmt.Errorf("device: write packet: %w", err)
	}
	return c.ReadAck()
}

// ReadAck reads one 4-byte acknowledgement.
func (c *Conn) ReadAck() (uint32, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	ack := make([]byte, avl.AckLen)
	if _, err := io.ReadFull(c.conn, ack); err != nil {
		return 0, fmt.Errorf("device: read ack: %w", err)
	}
	return binary.BigEndian.Uint32(ack), nil
}

// SendWithRetry resends records while the gateway acknowledges zero, backing
// off between attempts. It returns the final ack and the attempts made.
func (c *Conn) SendWithRetry(ctx context.Context, records []avl.Record) (uint32, int, error) {
	maxAttempts := c.cfg.MaxSendAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	for attempt := 1; ; attempt++ {
		ack, err := c.SendPacket(records)
		if err != nil {
			return 0, attempt, err
		}
		if ack > 0 {
			return ack, attempt, nil
		}
		c.cfg.Logger.Debug().Int("attempt", attempt).Str("imei", c.cfg.IMEI.String()).Msg("packet not acknowledged")
		if attempt >= maxAttempts {
			return 0, attempt, ErrNotAcknowledged
		}
		if err := c.sleepBackoff(ctx, attempt); err != nil {
			return 0, attempt, err
		}
	}
}

func (c *Conn) sleepBackoff(ctx context.Context, attempt int) error {
	delay := NextBackoffDelay(c.cfg.Backoff, attempt, c.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
