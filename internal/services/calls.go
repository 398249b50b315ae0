package services

import (
	"encoding/json"

	"github.com/careline/realtime/internal/models"

	"github.com/rs/zerolog"
)

// CallRelay forwards 1:1 call signaling between users. It holds no call
// state: targets are resolved through the registry at relay time and an
// unreachable target simply drops the event, except InitiateCall which
// answers the caller with CallFailed.
type CallRelay struct {
	registry *ConnectionRegistry
	push     Pusher
	log      zerolog.Logger
}

func NewCallRelay(registry *ConnectionRegistry, push Pusher, log zerolog.Logger) *CallRelay {
	return &CallRelay{
		registry: registry,
		push:     push,
		log:      log.With().Str("component", "calls").Logger(),
	}
}

// Initiate rings every device of the callee. When the callee has no live
// connection only the calling connection hears back.
func (c *CallRelay) Initiate(callerID, callerConnectionID, calleeID string, isVideo bool) bool {
	if calleeID == "" || calleeID == callerID {
		c.push.Push(callerConnectionID, models.NewEvent(models.EventCallFailed, "invalid callee"))
		return false
	}
	if c.relay(calleeID, models.NewEvent(models.EventIncomingCall, callerID, isVideo)) == 0 {
		c.push.Push(callerConnectionID, models.NewEvent(models.EventCallFailed, models.CallFailedOffline))
		c.log.Debug().Str("caller_id", callerID).Str("callee_id", calleeID).Msg("call failed, callee offline")
		return false
	}
	return true
}

func (c *CallRelay) Offer(senderID, targetID string, offer json.RawMessage) int {
	return c.relay(targetID, models.NewEvent(models.EventReceiveOffer, senderID, offer))
}

func (c *CallRelay) Answer(responderID, callerID string, answer json.RawMessage) int {
	return c.relay(callerID, models.NewEvent(models.EventReceiveAnswer, responderID, answer))
}

func (c *CallRelay) IceCandidate(senderID, targetID string, candidate json.RawMessage) int {
	return c.relay(targetID, models.NewEvent(models.EventReceiveIceCandidate, senderID, candidate))
}

// Accept tells the caller and stops the callee's other devices ringing.
// Which of two simultaneous answers wins is left to the clients.
func (c *CallRelay) Accept(receiverID, receiverConnectionID, callerID string) int {
	n := c.relay(callerID, models.NewEvent(models.EventCallAccepted, receiverID))
	c.notifyOtherDevices(receiverID, receiverConnectionID, callerID)
	return n
}

func (c *CallRelay) Reject(receiverID, receiverConnectionID, callerID, reason string) int {
	n := c.relay(callerID, models.NewEvent(models.EventCallRejected, receiverID, reason))
	c.notifyOtherDevices(receiverID, receiverConnectionID, callerID)
	return n
}

func (c *CallRelay) End(userID, peerID string) int {
	return c.relay(peerID, models.NewEvent(models.EventCallEnded, userID))
}

func (c *CallRelay) relay(targetID string, ev models.Event) int {
	conns := c.registry.ConnectionsFor(targetID)
	if len(conns) == 0 {
		c.log.Debug().Str("target_id", targetID).Str("method", ev.Method).Msg("target unreachable, dropped")
		return 0
	}
	return pushAll(c.push, conns, ev)
}

func (c *CallRelay) notifyOtherDevices(userID, exceptConnectionID, callerID string) {
	ev := models.NewEvent(models.EventCallHandledElsewhere, callerID)
	for _, conn := range c.registry.ConnectionsFor(userID) {
		if conn != exceptConnectionID {
			c.push.Push(conn, ev)
		}
	}
}
