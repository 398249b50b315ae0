package services

import (
	"slices"
	"strings"
	"time"

	"github.com/careline/realtime/internal/models"

	"github.com/rs/zerolog"
)

// Group keys are namespaced so chat groups and consultation rooms can share
// one membership index.
const (
	chatGroupPrefix    = "group:"
	consultationPrefix = "consultation:"
)

func chatKey(name string) string   { return chatGroupPrefix + name }
func roomKey(roomID string) string { return consultationPrefix + roomID }

// GroupManager holds connection-scoped membership of named broadcast lists.
// A user joined from two devices is two members. Groups appear on first join
// and disappear when their last member leaves.
type GroupManager struct {
	members *setIndex // group key -> connection ids
	joined  *setIndex // connection id -> group keys
	push    Pusher
	now     func() time.Time
	log     zerolog.Logger
}

func NewGroupManager(push Pusher, log zerolog.Logger) *GroupManager {
	return &GroupManager{
		members: newSetIndex(),
		joined:  newSetIndex(),
		push:    push,
		now:     time.Now,
		log:     log.With().Str("component", "groups").Logger(),
	}
}

// Join reports whether the connection was newly added and the member count.
func (g *GroupManager) Join(connectionID, key string) (bool, int) {
	added, n := g.members.add(key, connectionID)
	if added {
		g.joined.add(connectionID, key)
	}
	return added, n
}

// Leave reports whether the connection was a member and how many remain.
func (g *GroupManager) Leave(connectionID, key string) (bool, int) {
	removed, n := g.members.remove(key, connectionID)
	if removed {
		g.joined.remove(connectionID, key)
	}
	return removed, n
}

// Drop tears the group down and returns the connections that were in it.
func (g *GroupManager) Drop(key string) []string {
	conns := g.members.drop(key)
	for _, c := range conns {
		g.joined.remove(c, key)
	}
	return conns
}

func (g *GroupManager) Broadcast(key string, ev models.Event) int {
	return pushAll(g.push, g.members.members(key), ev)
}

// BroadcastExcept sends to every member but one connection.
func (g *GroupManager) BroadcastExcept(key, exceptConnectionID string, ev models.Event) int {
	conns := g.members.members(key)
	conns = slices.DeleteFunc(conns, func(c string) bool { return c == exceptConnectionID })
	return pushAll(g.push, conns, ev)
}

func (g *GroupManager) Members(key string) []string { return g.members.members(key) }

func (g *GroupManager) Count(key string) int { return g.members.size(key) }

func (g *GroupManager) IsMember(connectionID, key string) bool {
	return g.members.has(key, connectionID)
}

// KeysOf lists the groups a connection has joined.
func (g *GroupManager) KeysOf(connectionID string) []string {
	return g.joined.members(connectionID)
}

// GroupCount is the number of non-empty groups.
func (g *GroupManager) GroupCount() int {
	n, _ := g.members.count()
	return n
}

// JoinChat joins a chat group, announces the member to the others and tells
// the joiner the resulting member count.
func (g *GroupManager) JoinChat(userID, connectionID, name string) error {
	if name == "" {
		return ErrInvalidArgs
	}
	key := chatKey(name)
	added, n := g.Join(connectionID, key)
	if added {
		g.BroadcastExcept(key, connectionID, models.NewEvent(models.EventMemberJoined, name, userID))
	}
	g.push.Push(connectionID, models.NewEvent(models.EventGroupJoined, name, n))
	return nil
}

// LeaveChat leaves a chat group and announces it to the remaining members.
func (g *GroupManager) LeaveChat(userID, connectionID, name string) error {
	key := chatKey(name)
	removed, _ := g.Leave(connectionID, key)
	if !removed {
		return ErrNotMember
	}
	g.Broadcast(key, models.NewEvent(models.EventMemberLeft, name, userID))
	return nil
}

// SendToChat fans a message out to every member connection, the sender's included.
func (g *GroupManager) SendToChat(userID, connectionID, name, content string) error {
	key := chatKey(name)
	if !g.IsMember(connectionID, key) {
		return ErrNotMember
	}
	g.Broadcast(key, models.NewEvent(models.EventReceiveGroupMessage, name, userID, content, g.now().UTC()))
	return nil
}

// DisconnectChat leaves every chat group the connection was in.
func (g *GroupManager) DisconnectChat(userID, connectionID string) {
	for _, key := range g.KeysOf(connectionID) {
		if name, ok := strings.CutPrefix(key, chatGroupPrefix); ok {
			_ = g.LeaveChat(userID, connectionID, name)
		}
	}
}
