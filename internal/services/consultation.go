package services

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/careline/realtime/internal/database"
	"github.com/careline/realtime/internal/models"

	"github.com/rs/zerolog"
)

// MediaToggle names a piece of participant state that is announced room wide.
type MediaToggle int

const (
	ToggleAudio MediaToggle = iota
	ToggleVideo
	ToggleScreenShare
	ToggleHand
)

type room struct {
	mu           sync.Mutex
	closed       bool
	participants map[string]*models.ParticipantState
	conns        map[string]int // user id -> joined connections
	recording    bool
	notes        string
}

func (r *room) roster() []models.ParticipantState {
	out := make([]models.ParticipantState, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// catchUp is everything a joiner needs to render the room: the roster, the
// recording flag and the current notes.
func (r *room) catchUp(roomID string) models.Event {
	return models.NewEvent(models.EventRoomParticipants, roomID, r.roster(), r.recording, r.notes)
}

// releaseConn drops one of userID's connections and reports whether it was
// their last.
func (r *room) releaseConn(userID string) bool {
	n, ok := r.conns[userID]
	if !ok {
		return false
	}
	if n > 1 {
		r.conns[userID] = n - 1
		return false
	}
	r.dropParticipant(userID)
	return true
}

func (r *room) dropParticipant(userID string) {
	delete(r.conns, userID)
	delete(r.participants, userID)
}

// ConsultationOrchestrator runs multi-party consultation rooms on top of the
// group membership index. It keeps the authoritative participant state per
// room and hands the roster to each joiner, relays per-pair mesh signaling
// for both camera and screen-share connections, and announces media,
// hand, recording and notes changes to the whole room.
type ConsultationOrchestrator struct {
	groups   *GroupManager
	registry *ConnectionRegistry
	profiles database.ProfileLookup
	push     Pusher
	now      func() time.Time
	log      zerolog.Logger

	mu    sync.RWMutex
	rooms map[string]*room
}

func NewConsultationOrchestrator(groups *GroupManager, registry *ConnectionRegistry, profiles database.ProfileLookup, push Pusher, log zerolog.Logger) *ConsultationOrchestrator {
	return &ConsultationOrchestrator{
		groups:   groups,
		registry: registry,
		profiles: profiles,
		push:     push,
		now:      time.Now,
		log:      log.With().Str("component", "consultation").Logger(),
		rooms:    make(map[string]*room),
	}
}

func (o *ConsultationOrchestrator) openRoom(roomID string) *room {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.rooms[roomID]
	if !ok {
		r = &room{
			participants: make(map[string]*models.ParticipantState),
			conns:        make(map[string]int),
		}
		o.rooms[roomID] = r
	}
	return r
}

func (o *ConsultationOrchestrator) getRoom(roomID string) *room {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.rooms[roomID]
}

// closeRoom must be called with r.mu held.
func (o *ConsultationOrchestrator) closeRoom(roomID string, r *room) {
	r.closed = true
	o.mu.Lock()
	if o.rooms[roomID] == r {
		delete(o.rooms, roomID)
	}
	o.mu.Unlock()
}

// lockParticipant returns the room locked, or ErrNotParticipant. The caller
// must unlock r.mu.
func (o *ConsultationOrchestrator) lockParticipant(roomID, userID string) (*room, *models.ParticipantState, error) {
	r := o.getRoom(roomID)
	if r == nil {
		return nil, nil, ErrNotParticipant
	}
	r.mu.Lock()
	p, ok := r.participants[userID]
	if r.closed || !ok {
		r.mu.Unlock()
		return nil, nil, ErrNotParticipant
	}
	return r, p, nil
}

// Join adds the connection to the room. Members already present see
// ParticipantJoined when the user is new to the room; the joining
// connection receives the catch-up.
func (o *ConsultationOrchestrator) Join(ctx context.Context, userID, connectionID, roomID string) error {
	if roomID == "" {
		return ErrInvalidArgs
	}

	info, err := o.profiles.GetDisplayInfo(ctx, userID)
	if err != nil {
		o.log.Warn().Err(err).Str("user_id", userID).Msg("profile lookup failed, joining without display info")
		info = &models.DisplayInfo{Name: userID}
	}

	key := roomKey(roomID)
	for {
		r := o.openRoom(roomID)
		r.mu.Lock()
		if r.closed {
			// Lost a race with the last leave; the next openRoom makes a fresh room.
			r.mu.Unlock()
			continue
		}

		added, _ := o.groups.Join(connectionID, key)
		if !added {
			ev := r.catchUp(roomID)
			r.mu.Unlock()
			o.push.Push(connectionID, ev)
			return nil
		}

		// A second device of a participant only gets the catch-up.
		p, present := r.participants[userID]
		if !present {
			p = &models.ParticipantState{
				UserID:         userID,
				Name:           info.Name,
				AvatarURL:      info.AvatarURL,
				IsAudioEnabled: true,
				IsVideoEnabled: true,
				JoinedAt:       o.now().UTC(),
			}
			r.participants[userID] = p
			o.groups.BroadcastExcept(key, connectionID, models.NewEvent(models.EventParticipantJoined, roomID, *p))
		}
		r.conns[userID]++

		o.push.Push(connectionID, r.catchUp(roomID))
		r.mu.Unlock()

		o.log.Debug().Str("room_id", roomID).Str("user_id", userID).Msg("participant joined")
		return nil
	}
}

// Leave removes the connection. ParticipantLeft is announced once, when the
// user's last connection in the room goes; the room goes with its last
// connection.
func (o *ConsultationOrchestrator) Leave(userID, connectionID, roomID string) error {
	for {
		r := o.getRoom(roomID)
		if r == nil {
			return ErrNotParticipant
		}
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			continue
		}
		ok := o.leaveLocked(r, userID, connectionID, roomID)
		r.mu.Unlock()
		if !ok {
			return ErrNotParticipant
		}
		return nil
	}
}

func (o *ConsultationOrchestrator) leaveLocked(r *room, userID, connectionID, roomID string) bool {
	key := roomKey(roomID)
	removed, remaining := o.groups.Leave(connectionID, key)
	if !removed {
		return false
	}

	switch {
	case remaining == 0:
		r.dropParticipant(userID)
		o.closeRoom(roomID, r)
	case r.releaseConn(userID):
		o.groups.Broadcast(key, models.NewEvent(models.EventParticipantLeft, roomID, userID))
	}
	return true
}

// Relay forwards one signaling payload to the target's connections in the
// room. event selects the outbound name, which separates the camera and
// screen-share negotiations.
func (o *ConsultationOrchestrator) Relay(senderID, roomID, targetID, event string, payload json.RawMessage) (int, error) {
	r, _, err := o.lockParticipant(roomID, senderID)
	if err != nil {
		return 0, err
	}
	defer r.mu.Unlock()

	if _, ok := r.participants[targetID]; !ok {
		return 0, ErrNotParticipant
	}
	return o.pushToUserInRoom(targetID, roomID, models.NewEvent(event, roomID, senderID, payload)), nil
}

func (o *ConsultationOrchestrator) pushToUserInRoom(userID, roomID string, ev models.Event) int {
	key := roomKey(roomID)
	n := 0
	for _, c := range o.registry.ConnectionsFor(userID) {
		if o.groups.IsMember(c, key) && o.push.Push(c, ev) {
			n++
		}
	}
	return n
}

// SetState updates the participant's state and announces it to the room.
func (o *ConsultationOrchestrator) SetState(userID, roomID string, toggle MediaToggle, on bool) error {
	r, p, err := o.lockParticipant(roomID, userID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	var ev models.Event
	switch toggle {
	case ToggleAudio:
		p.IsAudioEnabled = on
		ev = models.NewEvent(models.EventAudioToggled, roomID, userID, on)
	case ToggleVideo:
		p.IsVideoEnabled = on
		ev = models.NewEvent(models.EventVideoToggled, roomID, userID, on)
	case ToggleScreenShare:
		p.IsScreenSharing = on
		ev = models.NewEvent(pick(on, models.EventScreenShareStarted, models.EventScreenShareStopped), roomID, userID)
	case ToggleHand:
		p.HandRaised = on
		ev = models.NewEvent(pick(on, models.EventHandRaised, models.EventHandLowered), roomID, userID)
	default:
		return ErrInvalidArgs
	}

	o.groups.Broadcast(roomKey(roomID), ev)
	return nil
}

// SetRecording announces that recording started or stopped. Storing the
// recording is someone else's job.
func (o *ConsultationOrchestrator) SetRecording(userID, roomID string, on bool) error {
	r, _, err := o.lockParticipant(roomID, userID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	r.recording = on
	name := pick(on, models.EventRecordingStarted, models.EventRecordingStopped)
	o.groups.Broadcast(roomKey(roomID), models.NewEvent(name, roomID, userID, o.now().UTC()))
	return nil
}

func (o *ConsultationOrchestrator) UpdateNotes(userID, roomID, notes string) error {
	r, _, err := o.lockParticipant(roomID, userID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	r.notes = notes
	o.groups.Broadcast(roomKey(roomID), models.NewEvent(models.EventNotesUpdated, roomID, userID, notes))
	return nil
}

// RequestStatus answers the requester from the server side roster and also
// asks the other participants, for clients that still reply themselves.
func (o *ConsultationOrchestrator) RequestStatus(userID, connectionID, roomID string) error {
	r, _, err := o.lockParticipant(roomID, userID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	o.push.Push(connectionID, r.catchUp(roomID))
	o.groups.BroadcastExcept(roomKey(roomID), connectionID, models.NewEvent(models.EventParticipantsStatusRequested, roomID, userID))
	return nil
}

func (o *ConsultationOrchestrator) SendStatus(senderID, roomID, targetID string, status json.RawMessage) (int, error) {
	return o.Relay(senderID, roomID, targetID, models.EventReceiveParticipantStatus, status)
}

// Remove takes every connection of targetID out of the room and announces
// the participant left once.
func (o *ConsultationOrchestrator) Remove(byUserID, roomID, targetID string) error {
	r, _, err := o.lockParticipant(roomID, byUserID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	if _, ok := r.participants[targetID]; !ok {
		return ErrNotParticipant
	}

	key := roomKey(roomID)
	var conns []string
	for _, c := range o.registry.ConnectionsFor(targetID) {
		if o.groups.IsMember(c, key) {
			conns = append(conns, c)
		}
	}

	// Every device hears about the removal before anyone hears it left.
	pushAll(o.push, conns, models.NewEvent(models.EventRemovedFromConsultation, roomID, byUserID))
	remaining := o.groups.Count(key)
	for _, c := range conns {
		_, remaining = o.groups.Leave(c, key)
	}
	r.dropParticipant(targetID)

	if remaining == 0 {
		o.closeRoom(roomID, r)
	} else {
		o.groups.Broadcast(key, models.NewEvent(models.EventParticipantLeft, roomID, targetID))
	}
	o.log.Info().Str("room_id", roomID).Str("by", byUserID).Str("target", targetID).Msg("participant removed")
	return nil
}

// End tears the room down for everyone.
func (o *ConsultationOrchestrator) End(byUserID, roomID string) error {
	r, _, err := o.lockParticipant(roomID, byUserID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	conns := o.groups.Drop(roomKey(roomID))
	pushAll(o.push, conns, models.NewEvent(models.EventConsultationEnded, roomID, byUserID))
	o.closeRoom(roomID, r)
	o.log.Info().Str("room_id", roomID).Str("by", byUserID).Int("connections", len(conns)).Msg("consultation ended")
	return nil
}

// Disconnect leaves every room the connection was in.
func (o *ConsultationOrchestrator) Disconnect(userID, connectionID string) {
	for _, key := range o.groups.KeysOf(connectionID) {
		if roomID, ok := strings.CutPrefix(key, consultationPrefix); ok {
			_ = o.Leave(userID, connectionID, roomID)
		}
	}
}

func (o *ConsultationOrchestrator) rosterOf(roomID string) []models.ParticipantState {
	r := o.getRoom(roomID)
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roster()
}

func (o *ConsultationOrchestrator) RoomCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.rooms)
}

func pick(on bool, yes, no string) string {
	if on {
		return yes
	}
	return no
}
