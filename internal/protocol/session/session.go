package session

import (
	"context"
	"fmt"

	"github.com/danmuck/avlgate/internal/observability"
	"github.com/danmuck/avlgate/internal/protocol/avl"
	"github.com/danmuck/avlgate/internal/tenant"
	"github.com/rs/zerolog"
)

// Phase is the protocol phase of one connection.
type Phase int

const (
	PhaseAwaitingIdentity Phase = iota
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingIdentity:
		return "awaiting_identity"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

const (
	replyReject byte = 0x00
	replyAccept byte = 0x01
)

// Router is what a session needs from the tenant layer.
type Router interface {
	Resolve(ctx context.Context, id avl.Identity) (tenant.Route, error)
	RouteRecords(ctx context.Context, route tenant.Route, records []avl.Record) error
}

// Result is the outcome of feeding one inbound chunk.
type Result struct {
	// Reply holds the bytes to write back, possibly empty.
	Reply []byte
	// Close asks the caller to close the connection after writing Reply.
	Close bool
	// Packets is the number of data messages processed by this chunk.
	Packets int
	// Acked is the total record count acknowledged by this chunk.
	Acked int
}

// Session turns one connection's byte stream into handshake and data messages.
type Session struct {
	cfg    Config
	router Router
	logger zerolog.Logger

	phase    Phase
	identity avl.Identity
	route    tenant.Route
	inbox    []byte
}

// New returns a session awaiting the identity frame.
func New(router Router, cfg Config, logger zerolog.Logger) *Session {
	return &Session{
		cfg:    cfg.WithDefaults(),
		router: router,
		logger: logger,
		phase:  PhaseAwaitingIdentity,
	}
}

// Phase returns the current protocol phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// Identity returns the authenticated device, or empty before the handshake.
func (s *Session) Identity() avl.Identity {
	return s.identity
}

// Route returns the tenant route once authenticated.
func (s *Session) Route() (tenant.Route, bool) {
	return s.route, s.phase == PhaseAuthenticated
}

// Buffered reports how many inbound bytes are waiting for a decision.
func (s *Session) Buffered() int {
	return len(s.inbox)
}

// Feed appends chunk to the inbox and advances the state machine as far as
// the buffered bytes allow. Calls must not overlap.
func (s *Session) Feed(ctx context.Context, chunk []byte) Result {
	s.inbox = append(s.inbox, chunk...)
	if s.phase == PhaseAwaitingIdentity {
		res := s.feedIdentity(ctx)
		if res.Close || s.phase != PhaseAuthenticated || len(s.inbox) == 0 {
			return res
		}
		data := s.feedData(ctx)
		res.Reply = append(res.Reply, data.Reply...)
		res.Packets += data.Packets
		res.Acked += data.Acked
		return res
	}
	return s.feedData(ctx)
}

func (s *Session) feedIdentity(ctx context.Context) (res Result) {
	if len(s.inbox) < avl.IdentityFrameLen {
		return Result{}
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("session identity phase fault")
			observability.RecordHandshake("fault")
			s.inbox = nil
			res = Result{Reply: []byte{replyReject}, Close: true}
		}
	}()

	id, err := avl.DecodeIdentity(s.inbox)
	if err != nil {
		s.logger.Warn().Err(err).Hex("frame", s.inbox[:avl.IdentityFrameLen]).Msg("identity rejected")
		observability.RecordHandshake("invalid")
		s.inbox = nil
		return Result{Reply: []byte{replyReject}, Close: true}
	}

	route, err := s.router.Resolve(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("imei", id.String()).Msg("device not routable")
		observability.RecordHandshake("unknown")
		s.inbox = nil
		return Result{Reply: []byte{replyReject}, Close: true}
	}

	s.identity = id
	s.route = route
	s.phase = PhaseAuthenticated
	s.logger = s.logger.With().
		Str("imei", id.String()).
		Str("tenant", route.TenantLabel).
		Str("unit", route.UnitLabel).
		Logger()
	if s.cfg.Reassembly == ReassemblyLengthPrefixed {
		s.inbox = compact(s.inbox[avl.IdentityFrameLen:])
	} else {
		s.inbox = nil
	}
	observability.RecordHandshake("accepted")
	s.logger.Info().Msg("device authenticated")
	return Result{Reply: []byte{replyAccept}}
}

func (s *Session) feedData(ctx context.Context) Result {
	if s.cfg.Reassembly == ReassemblyLengthPrefixed {
		return s.feedLengthPrefixed(ctx)
	}
	if len(s.inbox) < avl.MinPacketLen {
		return Result{}
	}
	msg := s.inbox
	s.inbox = nil
	acked := s.handlePacket(ctx, msg)
	return Result{Reply: avl.EncodeAck(uint32(acked)), Packets: 1, Acked: acked}
}

func (s *Session) feedLengthPrefixed(ctx context.Context) Result {
	var res Result
	for len(s.inbox) >= avl.MinPacketLen {
		total, _ := avl.MessageLength(s.inbox)
		if total-8-avl.CRCLen > s.cfg.MaxPacketBytes {
			s.logger.Warn().Int("declared_bytes", total).Msg("data message exceeds limit, dropping buffer")
			observability.RecordPacket("unknown", "oversize", 0)
			s.inbox = nil
			res.Reply = append(res.Reply, avl.EncodeAck(0)...)
			res.Packets++
			break
		}
		if len(s.inbox) < total {
			break
		}
		msg := s.inbox[:total]
		acked := s.handlePacket(ctx, msg)
		s.inbox = s.inbox[total:]
		res.Reply = append(res.Reply, avl.EncodeAck(uint32(acked))...)
		res.Packets++
		res.Acked += acked
	}
	s.inbox = compact(s.inbox)
	return res
}

// handlePacket decodes and routes one data message and returns the record
// count to acknowledge. Every failure, including a panic, acknowledges zero.
func (s *Session) handlePacket(ctx context.Context, msg []byte) (acked int) {
	codec := "unknown"
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("session data phase fault")
			observability.RecordPacket(codec, "fault", 0)
			acked = 0
		}
	}()

	if s.cfg.VerifyCRC {
		if err := avl.VerifyCRC(msg); err != nil {
			s.logger.Warn().Err(err).Int("bytes", len(msg)).Msg("data message failed integrity check")
			observability.RecordPacket(codec, "crc", 0)
			return 0
		}
	}

	pkt, err := avl.DecodePacket(msg)
	if err != nil {
		s.logger.Warn().Err(err).Int("bytes", len(msg)).Msg("data message malformed")
		observability.RecordPacket(codec, "malformed", 0)
		return 0
	}
	codec = pkt.Codec.String()
	if len(pkt.Records) == 0 {
		s.logger.Debug().Str("codec", codec).Msg("data message carried no records")
		observability.RecordPacket(codec, "empty", 0)
		return 0
	}

	if err := s.router.RouteRecords(ctx, s.route, pkt.Records); err != nil {
		s.logger.Warn().Err(err).Str("codec", codec).Int("records", len(pkt.Records)).Msg("sink write failed")
		observability.RecordPacket(codec, "sink_failed", 0)
		return 0
	}
	s.logger.Debug().Str("codec", codec).Int("records", pkt.DeclaredCount).Msg("records acknowledged")
	observability.RecordPacket(codec, "acked", pkt.DeclaredCount)
	return pkt.DeclaredCount
}

// compact copies the unread tail so the backing array of consumed messages can be released.
func compact(buf []byte) []byte {
	if len(buf) == 0 {
		return nil
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out
}

func (r Result) String() string {
	return fmt.Sprintf("reply=% x close=%t packets=%d acked=%d", r.Reply, r.Close, r.Packets, r.Acked)
}
