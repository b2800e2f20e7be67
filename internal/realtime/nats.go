package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const subjectPrefix = "port42.realtime.resource."

// relayEnvelope 跨实例传递的消息
type relayEnvelope struct {
	Event   EventType       `json:"event"`
	Origin  string          `json:"origin,omitempty"`
	Message json.RawMessage `json:"message"`
}

// NATSRelay 多实例部署时通过 NATS 广播，每个实例再投递到自己的 Hub
type NATSRelay struct {
	nc  *nats.Conn
	sub *nats.Subscription
	hub *Hub
	log *zap.SugaredLogger
}

func NewNATSRelay(url string, hub *Hub, log *zap.SugaredLogger) (*NATSRelay, error) {
	nc, err := nats.Connect(url,
		nats.Name("port42-realtime"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnw("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infow("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	r := &NATSRelay{nc: nc, hub: hub, log: log}
	r.sub, err = nc.Subscribe(subjectPrefix+"*", r.handle)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s*: %w", subjectPrefix, err)
	}
	return r, nil
}

func subjectFor(resourceID uint) string {
	return subjectPrefix + strconv.FormatUint(uint64(resourceID), 10)
}

func resourceFromSubject(subject string) (uint, bool) {
	tail, ok := strings.CutPrefix(subject, subjectPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(tail, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Publish 发到 NATS，本实例也通过订阅收到并投递
func (r *NATSRelay) Publish(ctx context.Context, resourceID uint, event EventType, payload any, originConnID string) {
	if err := ctx.Err(); err != nil {
		r.log.Debugw("Realtime publish skipped, context done", "resource_id", resourceID, "error", err)
		return
	}
	msg, err := Encode(resourceID, event, payload)
	if err != nil {
		r.log.Warnw("Realtime encode failed", "resource_id", resourceID, "event", event, "error", err)
		return
	}
	data, err := json.Marshal(relayEnvelope{Event: event, Origin: originConnID, Message: msg})
	if err != nil {
		r.log.Warnw("Realtime relay marshal failed", "error", err)
		return
	}
	if err := r.nc.Publish(subjectFor(resourceID), data); err != nil {
		// NATS 不可用时退回本地投递
		r.log.Warnw("NATS publish failed, delivering locally", "resource_id", resourceID, "error", err)
		r.hub.Deliver(resourceID, event, msg, originConnID)
	}
}

func (r *NATSRelay) handle(m *nats.Msg) {
	resourceID, ok := resourceFromSubject(m.Subject)
	if !ok {
		r.log.Warnw("Realtime relay: bad subject", "subject", m.Subject)
		return
	}
	var env relayEnvelope
	if err := json.Unmarshal(m.Data, &env); err != nil {
		r.log.Warnw("Realtime relay: bad message", "subject", m.Subject, "error", err)
		return
	}
	r.hub.Deliver(resourceID, env.Event, env.Message, env.Origin)
}

func (r *NATSRelay) Close() {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
	r.nc.Close()
}
