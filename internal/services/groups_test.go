package services

import (
	"testing"

	"github.com/careline/realtime/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroups_JoinIsConnectionScoped(t *testing.T) {
	push := newRecordingPusher()
	g := NewGroupManager(push, zerolog.Nop())

	require.NoError(t, g.JoinChat("alice", "a1", "ward-3"))
	require.NoError(t, g.JoinChat("alice", "a2", "ward-3"))
	require.NoError(t, g.JoinChat("bob", "b1", "ward-3"))
	assert.Equal(t, 3, g.Count(chatKey("ward-3")))

	require.NoError(t, g.SendToChat("bob", "b1", "ward-3", "rounds at 9"))
	for _, conn := range []string{"a1", "a2", "b1"} {
		assert.Equal(t, 1, push.count(conn, models.EventReceiveGroupMessage), conn)
	}

	ev, _ := push.last("b1", models.EventGroupJoined)
	assert.Equal(t, []any{"ward-3", 3}, ev.Args)
	assert.Equal(t, 2, push.count("a1", models.EventMemberJoined))
	assert.Equal(t, 1, push.count("a2", models.EventMemberJoined))
	assert.Zero(t, push.count("b1", models.EventMemberJoined))
}

func TestGroups_LeaveAnnouncesExactlyOnce(t *testing.T) {
	push := newRecordingPusher()
	g := NewGroupManager(push, zerolog.Nop())
	for _, c := range []struct{ user, conn string }{{"alice", "a1"}, {"bob", "b1"}, {"carol", "c1"}} {
		require.NoError(t, g.JoinChat(c.user, c.conn, "ward-3"))
	}
	push.reset()

	before := g.Count(chatKey("ward-3"))
	require.NoError(t, g.LeaveChat("alice", "a1", "ward-3"))
	assert.Equal(t, before-1, g.Count(chatKey("ward-3")))

	assert.ErrorIs(t, g.LeaveChat("alice", "a1", "ward-3"), ErrNotMember)

	assert.Equal(t, 1, push.count("b1", models.EventMemberLeft))
	assert.Equal(t, 1, push.count("c1", models.EventMemberLeft))
	assert.Zero(t, push.count("a1", models.EventMemberLeft))
}

func TestGroups_DisconnectLeavesEveryChat(t *testing.T) {
	push := newRecordingPusher()
	g := NewGroupManager(push, zerolog.Nop())
	require.NoError(t, g.JoinChat("alice", "a1", "one"))
	require.NoError(t, g.JoinChat("alice", "a1", "two"))
	require.NoError(t, g.JoinChat("bob", "b1", "two"))
	g.Join("a1", roomKey("r1"))

	g.DisconnectChat("alice", "a1")

	assert.Zero(t, g.Count(chatKey("one")))
	assert.Equal(t, 1, g.Count(chatKey("two")))
	assert.Equal(t, 1, push.count("b1", models.EventMemberLeft))
	assert.Equal(t, []string{roomKey("r1")}, g.KeysOf("a1"), "consultation rooms are left by their own orchestrator")
}

func TestGroups_SendRequiresMembership(t *testing.T) {
	g := NewGroupManager(newRecordingPusher(), zerolog.Nop())
	assert.ErrorIs(t, g.SendToChat("alice", "a1", "ward-3", "hi"), ErrNotMember)
	assert.ErrorIs(t, g.JoinChat("alice", "a1", ""), ErrInvalidArgs)
}

func TestGroups_DropReturnsMembers(t *testing.T) {
	g := NewGroupManager(newRecordingPusher(), zerolog.Nop())
	g.Join("a1", "k")
	g.Join("b1", "k")

	assert.Equal(t, []string{"a1", "b1"}, g.Drop("k"))
	assert.Empty(t, g.KeysOf("a1"))
	assert.Zero(t, g.GroupCount())
}

func TestGroups_BroadcastUsesBatchPush(t *testing.T) {
	push := &batchingPusher{recordingPusher: newRecordingPusher()}
	g := NewGroupManager(push, zerolog.Nop())
	g.Join("a1", chatKey("ward-3"))
	g.Join("b1", chatKey("ward-3"))
	g.Join("c1", chatKey("ward-3"))

	assert.Equal(t, 3, g.Broadcast(chatKey("ward-3"), models.NewEvent(models.EventMemberLeft, "ward-3", "dan")))
	assert.Equal(t, 2, g.BroadcastExcept(chatKey("ward-3"), "b1", models.NewEvent(models.EventMemberLeft, "ward-3", "eve")))

	require.Len(t, push.batches, 2)
	assert.Equal(t, []string{"a1", "b1", "c1"}, push.batches[0])
	assert.Equal(t, []string{"a1", "c1"}, push.batches[1])
	assert.Equal(t, 2, push.count("a1", models.EventMemberLeft))
	assert.Equal(t, 1, push.count("b1", models.EventMemberLeft))
}
