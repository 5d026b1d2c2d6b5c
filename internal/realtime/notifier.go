package realtime

import (
	"context"
	"encoding/json"

	"github.com/flux-project/flux-server/internal/metrics"
	log "github.com/sirupsen/logrus"
)

// Relay forwards encoded tiers to other server instances.
type Relay interface {
	Publish(ctx context.Context, tiers []Tier) error
}

// Delivery is a payload addressed to rooms.
type Delivery struct {
	Rooms   []string
	Payload any
}

// Notifier pushes events to local rooms and, when configured, to peer instances.
type Notifier struct {
	hub   *Hub
	relay Relay
}

// NewNotifier builds a notifier; relay may be nil.
func NewNotifier(hub *Hub, relay Relay) *Notifier {
	return &Notifier{hub: hub, relay: relay}
}

// Publish emits event. A connection in several deliveries' rooms receives only the first matching payload.
func (n *Notifier) Publish(ctx context.Context, event string, deliveries ...Delivery) {
	tiers := make([]Tier, 0, len(deliveries))
	for _, delivery := range deliveries {
		if len(delivery.Rooms) == 0 {
			continue
		}
		encoded, err := json.Marshal(Frame{Event: event, Data: delivery.Payload})
		if err != nil {
			log.WithError(err).WithField("event", event).Error("realtime: encode push")
			return
		}
		tiers = append(tiers, Tier{Rooms: delivery.Rooms, Frame: encoded})
	}
	if len(tiers) == 0 {
		return
	}
	n.hub.Emit(tiers...)
	metrics.RecordPush(event)
	if n.relay == nil {
		return
	}
	if errRelay := n.relay.Publish(ctx, tiers); errRelay != nil {
		log.WithError(errRelay).WithField("event", event).Warn("realtime: relay publish failed")
	}
}
