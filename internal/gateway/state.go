package gateway

import (
	"sync"
	"time"

	"github.com/danmuck/avlgate/internal/protocol/session"
)

// SessionInfo is the admin view of one live connection.
type SessionInfo struct {
	Remote       string    `json:"remote"`
	IMEI         string    `json:"imei,omitempty"`
	Tenant       string    `json:"tenant,omitempty"`
	Unit         string    `json:"unit,omitempty"`
	Phase        string    `json:"phase"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
	Packets      uint64    `json:"packets"`
	Records      uint64    `json:"records"`
	LastAck      int       `json:"last_ack"`
}

type connState struct {
	mu   sync.Mutex
	info SessionInfo
}

func newConnState(remote string, now time.Time) *connState {
	return &connState{info: SessionInfo{
		Remote:       remote,
		Phase:        session.PhaseAwaitingIdentity.String(),
		ConnectedAt:  now,
		LastActivity: now,
	}}
}

func (c *connState) observe(sess *session.Session, res session.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info.LastActivity = time.Now()
	c.info.Phase = sess.Phase().String()
	if route, ok := sess.Route(); ok && c.info.IMEI == "" {
		c.info.IMEI = route.DeviceID.String()
		c.info.Tenant = route.TenantLabel
		c.info.Unit = route.UnitLabel
	}
	if res.Packets > 0 {
		c.info.Packets += uint64(res.Packets)
		c.info.Records += uint64(res.Acked)
		c.info.LastAck = res.Acked
	}
}

func (c *connState) snapshot() SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}
