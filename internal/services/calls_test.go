package services

import (
	"encoding/json"
	"testing"

	"github.com/careline/realtime/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newCalls() (*CallRelay, *ConnectionRegistry, *recordingPusher) {
	reg := NewConnectionRegistry()
	push := newRecordingPusher()
	return NewCallRelay(reg, push, zerolog.Nop()), reg, push
}

func TestCalls_OfflineCalleeFailsToCallerOnly(t *testing.T) {
	c, reg, push := newCalls()
	reg.Register("alice", "a1")
	reg.Register("alice", "a2")
	reg.Register("bob", "b1")

	assert.False(t, c.Initiate("alice", "a1", "carol", true))

	assert.Equal(t, []models.Event{models.NewEvent(models.EventCallFailed, models.CallFailedOffline)}, push.of("a1"))
	assert.Empty(t, push.of("a2"))
	assert.Empty(t, push.of("b1"))
}

func TestCalls_InitiateRingsEveryDevice(t *testing.T) {
	c, reg, push := newCalls()
	reg.Register("alice", "a1")
	reg.Register("bob", "b1")
	reg.Register("bob", "b2")

	assert.True(t, c.Initiate("alice", "a1", "bob", false))
	for _, conn := range []string{"b1", "b2"} {
		assert.Equal(t, []models.Event{models.NewEvent(models.EventIncomingCall, "alice", false)}, push.of(conn))
	}
	assert.Empty(t, push.of("a1"))
}

func TestCalls_InitiateSelfFails(t *testing.T) {
	c, reg, push := newCalls()
	reg.Register("alice", "a1")

	assert.False(t, c.Initiate("alice", "a1", "alice", true))
	assert.Equal(t, 1, push.count("a1", models.EventCallFailed))
}

func TestCalls_RelayPassesPayloadVerbatim(t *testing.T) {
	c, reg, push := newCalls()
	reg.Register("bob", "b1")
	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)

	assert.Equal(t, 1, c.Offer("alice", "bob", offer))
	ev, ok := push.last("b1", models.EventReceiveOffer)
	assert.True(t, ok)
	assert.Equal(t, []any{"alice", offer}, ev.Args)

	assert.Zero(t, c.IceCandidate("bob", "nobody", json.RawMessage(`{}`)), "unreachable target is dropped")
}

func TestCalls_AcceptStopsOtherDevicesRinging(t *testing.T) {
	c, reg, push := newCalls()
	reg.Register("alice", "a1")
	reg.Register("bob", "b1")
	reg.Register("bob", "b2")

	assert.Equal(t, 1, c.Accept("bob", "b1", "alice"))

	assert.Equal(t, []string{models.EventCallAccepted}, push.methods("a1"))
	assert.Empty(t, push.of("b1"))
	assert.Equal(t, []models.Event{models.NewEvent(models.EventCallHandledElsewhere, "alice")}, push.of("b2"))
}

func TestCalls_RejectAndEnd(t *testing.T) {
	c, reg, push := newCalls()
	reg.Register("alice", "a1")
	reg.Register("bob", "b1")

	c.Reject("bob", "b1", "alice", "busy")
	ev, _ := push.last("a1", models.EventCallRejected)
	assert.Equal(t, []any{"bob", "busy"}, ev.Args)

	assert.Equal(t, 1, c.End("alice", "bob"))
	assert.Equal(t, []string{models.EventCallEnded}, push.methods("b1"))
}
