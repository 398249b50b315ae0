package models

import (
	"encoding/json"
	"fmt"
)

// Inbound invocation names. The caller's own user id comes from the
// authenticated connection; the 1:1 call methods also accept it as a leading
// argument.
const (
	MethodStartTyping = "StartTyping"
	MethodStopTyping  = "StopTyping"

	MethodSendMessage          = "SendMessage"
	MethodMarkMessageRead      = "MarkMessageRead"
	MethodMarkConversationRead = "MarkConversationRead"

	MethodJoinGroup        = "JoinGroup"
	MethodLeaveGroup       = "LeaveGroup"
	MethodSendGroupMessage = "SendGroupMessage"

	MethodInitiateCall = "InitiateCall"
	MethodOffer        = "Offer"
	MethodAnswer       = "Answer"
	MethodIceCandidate = "IceCandidate"
	MethodAcceptCall   = "AcceptCall"
	MethodRejectCall   = "RejectCall"
	MethodEndCall      = "EndCall"

	MethodJoinConsultation          = "JoinConsultation"
	MethodLeaveConsultation         = "LeaveConsultation"
	MethodConsultationOffer         = "ConsultationOffer"
	MethodConsultationAnswer        = "ConsultationAnswer"
	MethodConsultationIceCandidate  = "ConsultationIceCandidate"
	MethodScreenShareOffer          = "ScreenShareOffer"
	MethodScreenShareAnswer         = "ScreenShareAnswer"
	MethodScreenShareIceCandidate   = "ScreenShareIceCandidate"
	MethodToggleAudio               = "ToggleAudio"
	MethodToggleVideo               = "ToggleVideo"
	MethodStartScreenShare          = "StartScreenShare"
	MethodStopScreenShare           = "StopScreenShare"
	MethodRaiseHand                 = "RaiseHand"
	MethodLowerHand                 = "LowerHand"
	MethodStartRecording            = "StartRecording"
	MethodStopRecording             = "StopRecording"
	MethodUpdateNotes               = "UpdateNotes"
	MethodRequestParticipantsStatus = "RequestParticipantsStatus"
	MethodSendParticipantStatus     = "SendParticipantStatus"
	MethodRemoveParticipant         = "RemoveParticipant"
	MethodEndConsultation           = "EndConsultation"
)

// Outbound event names.
const (
	EventUserOnline  = "UserOnline"
	EventUserOffline = "UserOffline"
	EventOnlineUsers = "OnlineUsers"

	EventUserTyping        = "UserTyping"
	EventUserStoppedTyping = "UserStoppedTyping"

	EventReceiveMessage       = "ReceiveMessage"
	EventMessageStatusUpdated = "MessageStatusUpdated"
	EventConversationRead     = "ConversationRead"
	EventOperationFailed      = "OperationFailed"

	EventGroupJoined         = "GroupJoined"
	EventMemberJoined        = "MemberJoined"
	EventMemberLeft          = "MemberLeft"
	EventReceiveGroupMessage = "ReceiveGroupMessage"

	EventIncomingCall         = "IncomingCall"
	EventCallFailed           = "CallFailed"
	EventReceiveOffer         = "ReceiveOffer"
	EventReceiveAnswer        = "ReceiveAnswer"
	EventReceiveIceCandidate  = "ReceiveIceCandidate"
	EventCallAccepted         = "CallAccepted"
	EventCallRejected         = "CallRejected"
	EventCallEnded            = "CallEnded"
	EventCallHandledElsewhere = "CallHandledElsewhere"

	EventParticipantJoined               = "ParticipantJoined"
	EventParticipantLeft                 = "ParticipantLeft"
	EventRoomParticipants                = "RoomParticipants"
	EventReceiveConsultationOffer        = "ReceiveConsultationOffer"
	EventReceiveConsultationAnswer       = "ReceiveConsultationAnswer"
	EventReceiveConsultationIceCandidate = "ReceiveConsultationIceCandidate"
	EventReceiveScreenShareOffer         = "ReceiveScreenShareOffer"
	EventReceiveScreenShareAnswer        = "ReceiveScreenShareAnswer"
	EventReceiveScreenShareIceCandidate  = "ReceiveScreenShareIceCandidate"
	EventAudioToggled                    = "AudioToggled"
	EventVideoToggled                    = "VideoToggled"
	EventScreenShareStarted              = "ScreenShareStarted"
	EventScreenShareStopped              = "ScreenShareStopped"
	EventHandRaised                      = "HandRaised"
	EventHandLowered                     = "HandLowered"
	EventRecordingStarted                = "RecordingStarted"
	EventRecordingStopped                = "RecordingStopped"
	EventNotesUpdated                    = "NotesUpdated"
	EventParticipantsStatusRequested     = "ParticipantsStatusRequested"
	EventReceiveParticipantStatus        = "ReceiveParticipantStatus"
	EventRemovedFromConsultation         = "RemovedFromConsultation"
	EventConsultationEnded               = "ConsultationEnded"
)

// CallFailedOffline is the reason sent when the callee has no live connection.
const CallFailedOffline = "offline"

// Event is an outbound frame pushed to a connection.
type Event struct {
	Method string `json:"method"`
	Args   []any  `json:"args"`
}

// NewEvent builds an outbound frame with positional arguments.
func NewEvent(method string, args ...any) Event {
	if args == nil {
		args = []any{}
	}
	return Event{Method: method, Args: args}
}

// Invocation is an inbound frame received from a connection.
type Invocation struct {
	Method string            `json:"method"`
	Args   []json.RawMessage `json:"args"`
}

// Bind decodes the positional arguments into dst, in order. Missing
// arguments are an error; trailing extra arguments are ignored.
func (inv Invocation) Bind(dst ...any) error {
	if len(inv.Args) < len(dst) {
		return fmt.Errorf("%s: expected %d arguments, got %d", inv.Method, len(dst), len(inv.Args))
	}
	for i, d := range dst {
		if err := json.Unmarshal(inv.Args[i], d); err != nil {
			return fmt.Errorf("%s: argument %d: %w", inv.Method, i, err)
		}
	}
	return nil
}
