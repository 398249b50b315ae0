package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/careline/realtime/internal/models"
	"github.com/careline/realtime/internal/services"
)

func (h *Hub) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		models.MethodStartTyping: h.startTyping,
		models.MethodStopTyping:  h.stopTyping,

		models.MethodSendMessage:          h.sendMessage,
		models.MethodMarkMessageRead:      h.markMessageRead,
		models.MethodMarkConversationRead: h.markConversationRead,

		models.MethodJoinGroup:        h.joinGroup,
		models.MethodLeaveGroup:       h.leaveGroup,
		models.MethodSendGroupMessage: h.sendGroupMessage,

		models.MethodInitiateCall: h.initiateCall,
		models.MethodOffer:        h.callSignal(h.calls.Offer),
		models.MethodAnswer:       h.callSignal(h.calls.Answer),
		models.MethodIceCandidate: h.callSignal(h.calls.IceCandidate),
		models.MethodAcceptCall:   h.acceptCall,
		models.MethodRejectCall:   h.rejectCall,
		models.MethodEndCall:      h.endCall,

		models.MethodJoinConsultation:          h.joinConsultation,
		models.MethodLeaveConsultation:         h.leaveConsultation,
		models.MethodConsultationOffer:         h.roomSignal(models.EventReceiveConsultationOffer),
		models.MethodConsultationAnswer:        h.roomSignal(models.EventReceiveConsultationAnswer),
		models.MethodConsultationIceCandidate:  h.roomSignal(models.EventReceiveConsultationIceCandidate),
		models.MethodScreenShareOffer:          h.roomSignal(models.EventReceiveScreenShareOffer),
		models.MethodScreenShareAnswer:         h.roomSignal(models.EventReceiveScreenShareAnswer),
		models.MethodScreenShareIceCandidate:   h.roomSignal(models.EventReceiveScreenShareIceCandidate),
		models.MethodToggleAudio:               h.toggle(services.ToggleAudio),
		models.MethodToggleVideo:               h.toggle(services.ToggleVideo),
		models.MethodStartScreenShare:          h.setState(services.ToggleScreenShare, true),
		models.MethodStopScreenShare:           h.setState(services.ToggleScreenShare, false),
		models.MethodRaiseHand:                 h.setState(services.ToggleHand, true),
		models.MethodLowerHand:                 h.setState(services.ToggleHand, false),
		models.MethodStartRecording:            h.recording(true),
		models.MethodStopRecording:             h.recording(false),
		models.MethodUpdateNotes:               h.updateNotes,
		models.MethodRequestParticipantsStatus: h.requestStatus,
		models.MethodSendParticipantStatus:     h.sendStatus,
		models.MethodRemoveParticipant:         h.removeParticipant,
		models.MethodEndConsultation:           h.endConsultation,
	}
}

// Typing

func (h *Hub) startTyping(_ context.Context, c *Client, inv models.Invocation) error {
	var receiverID string
	if err := bind(inv, &receiverID); err != nil {
		return err
	}
	h.typing.StartTyping(c.userID, receiverID)
	return nil
}

func (h *Hub) stopTyping(_ context.Context, c *Client, inv models.Invocation) error {
	var receiverID string
	if err := bind(inv, &receiverID); err != nil {
		return err
	}
	h.typing.StopTyping(c.userID, receiverID)
	return nil
}

// Messages

func (h *Hub) sendMessage(ctx context.Context, c *Client, inv models.Invocation) error {
	var messageID, receiverID string
	if err := bind(inv, &messageID, &receiverID); err != nil {
		return err
	}
	return h.delivery.Send(ctx, c.userID, messageID, receiverID)
}

func (h *Hub) markMessageRead(ctx context.Context, c *Client, inv models.Invocation) error {
	var messageID string
	if err := bind(inv, &messageID); err != nil {
		return err
	}
	return h.delivery.MarkRead(ctx, messageID, c.userID)
}

func (h *Hub) markConversationRead(ctx context.Context, c *Client, inv models.Invocation) error {
	var conversationID string
	if err := bind(inv, &conversationID); err != nil {
		return err
	}
	return h.delivery.MarkConversationRead(ctx, conversationID, c.userID)
}

// Chat groups

func (h *Hub) joinGroup(_ context.Context, c *Client, inv models.Invocation) error {
	var name string
	if err := bind(inv, &name); err != nil {
		return err
	}
	return h.groups.JoinChat(c.userID, c.id, name)
}

func (h *Hub) leaveGroup(_ context.Context, c *Client, inv models.Invocation) error {
	var name string
	if err := bind(inv, &name); err != nil {
		return err
	}
	return h.groups.LeaveChat(c.userID, c.id, name)
}

func (h *Hub) sendGroupMessage(_ context.Context, c *Client, inv models.Invocation) error {
	var name, content string
	if err := bind(inv, &name, &content); err != nil {
		return err
	}
	return h.groups.SendToChat(c.userID, c.id, name, content)
}

// 1:1 calls

// callArgs accepts both argument forms of the 1:1 call methods: the short
// one of n arguments plus up to opt optional ones, and the long one that
// leads with the caller's own id. The leading id is stripped when it matches
// the connection's user; a frame too long for the short form must lead with
// it.
func callArgs(c *Client, inv models.Invocation, n, opt int) (models.Invocation, error) {
	if len(inv.Args) > n {
		var self string
		if json.Unmarshal(inv.Args[0], &self) == nil && self == c.userID {
			inv.Args = inv.Args[1:]
			return inv, nil
		}
	}
	if len(inv.Args) > n+opt {
		return inv, fmt.Errorf("%w: %s: leading id does not match the caller", services.ErrInvalidArgs, inv.Method)
	}
	return inv, nil
}

func (h *Hub) initiateCall(_ context.Context, c *Client, inv models.Invocation) error {
	inv, err := callArgs(c, inv, 2, 0)
	if err != nil {
		return err
	}
	var calleeID string
	var isVideo bool
	if err := bind(inv, &calleeID, &isVideo); err != nil {
		return err
	}
	h.calls.Initiate(c.userID, c.id, calleeID, isVideo)
	return nil
}

func (h *Hub) callSignal(relay func(senderID, targetID string, payload json.RawMessage) int) handlerFunc {
	return func(_ context.Context, c *Client, inv models.Invocation) error {
		inv, err := callArgs(c, inv, 2, 0)
		if err != nil {
			return err
		}
		var targetID string
		var payload json.RawMessage
		if err := bind(inv, &targetID, &payload); err != nil {
			return err
		}
		relay(c.userID, targetID, payload)
		return nil
	}
}

func (h *Hub) acceptCall(_ context.Context, c *Client, inv models.Invocation) error {
	inv, err := callArgs(c, inv, 1, 0)
	if err != nil {
		return err
	}
	var callerID string
	if err := bind(inv, &callerID); err != nil {
		return err
	}
	h.calls.Accept(c.userID, c.id, callerID)
	return nil
}

func (h *Hub) rejectCall(_ context.Context, c *Client, inv models.Invocation) error {
	inv, err := callArgs(c, inv, 1, 1)
	if err != nil {
		return err
	}
	var callerID, reason string
	if err := bind(inv, &callerID); err != nil {
		return err
	}
	if len(inv.Args) > 1 {
		if err := json.Unmarshal(inv.Args[1], &reason); err != nil {
			c.log.Debug().Err(err).Str("method", inv.Method).Msg("malformed reject reason ignored")
		}
	}
	h.calls.Reject(c.userID, c.id, callerID, reason)
	return nil
}

func (h *Hub) endCall(_ context.Context, c *Client, inv models.Invocation) error {
	inv, err := callArgs(c, inv, 1, 0)
	if err != nil {
		return err
	}
	var peerID string
	if err := bind(inv, &peerID); err != nil {
		return err
	}
	h.calls.End(c.userID, peerID)
	return nil
}

// Consultation rooms

func (h *Hub) joinConsultation(ctx context.Context, c *Client, inv models.Invocation) error {
	var roomID string
	if err := bind(inv, &roomID); err != nil {
		return err
	}
	return h.rooms.Join(ctx, c.userID, c.id, roomID)
}

func (h *Hub) leaveConsultation(_ context.Context, c *Client, inv models.Invocation) error {
	var roomID string
	if err := bind(inv, &roomID); err != nil {
		return err
	}
	return h.rooms.Leave(c.userID, c.id, roomID)
}

func (h *Hub) roomSignal(event string) handlerFunc {
	return func(_ context.Context, c *Client, inv models.Invocation) error {
		var roomID, targetID string
		var payload json.RawMessage
		if err := bind(inv, &roomID, &targetID, &payload); err != nil {
			return err
		}
		_, err := h.rooms.Relay(c.userID, roomID, targetID, event, payload)
		return err
	}
}

func (h *Hub) toggle(t services.MediaToggle) handlerFunc {
	return func(_ context.Context, c *Client, inv models.Invocation) error {
		var roomID string
		var enabled bool
		if err := bind(inv, &roomID, &enabled); err != nil {
			return err
		}
		return h.rooms.SetState(c.userID, roomID, t, enabled)
	}
}

func (h *Hub) setState(t services.MediaToggle, on bool) handlerFunc {
	return func(_ context.Context, c *Client, inv models.Invocation) error {
		var roomID string
		if err := bind(inv, &roomID); err != nil {
			return err
		}
		return h.rooms.SetState(c.userID, roomID, t, on)
	}
}

func (h *Hub) recording(on bool) handlerFunc {
	return func(_ context.Context, c *Client, inv models.Invocation) error {
		var roomID string
		if err := bind(inv, &roomID); err != nil {
			return err
		}
		return h.rooms.SetRecording(c.userID, roomID, on)
	}
}

func (h *Hub) updateNotes(_ context.Context, c *Client, inv models.Invocation) error {
	var roomID, notes string
	if err := bind(inv, &roomID, &notes); err != nil {
		return err
	}
	return h.rooms.UpdateNotes(c.userID, roomID, notes)
}

func (h *Hub) requestStatus(_ context.Context, c *Client, inv models.Invocation) error {
	var roomID string
	if err := bind(inv, &roomID); err != nil {
		return err
	}
	return h.rooms.RequestStatus(c.userID, c.id, roomID)
}

func (h *Hub) sendStatus(_ context.Context, c *Client, inv models.Invocation) error {
	var roomID, targetID string
	var status json.RawMessage
	if err := bind(inv, &roomID, &targetID, &status); err != nil {
		return err
	}
	_, err := h.rooms.SendStatus(c.userID, roomID, targetID, status)
	return err
}

func (h *Hub) removeParticipant(_ context.Context, c *Client, inv models.Invocation) error {
	var roomID, targetID string
	if err := bind(inv, &roomID, &targetID); err != nil {
		return err
	}
	return h.rooms.Remove(c.userID, roomID, targetID)
}

func (h *Hub) endConsultation(_ context.Context, c *Client, inv models.Invocation) error {
	var roomID string
	if err := bind(inv, &roomID); err != nil {
		return err
	}
	return h.rooms.End(c.userID, roomID)
}
