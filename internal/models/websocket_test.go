package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvocation_Bind(t *testing.T) {
	var inv Invocation
	require.NoError(t, json.Unmarshal([]byte(`{"method":"InitiateCall","args":["user-c",true,"extra"]}`), &inv))

	var callee string
	var isVideo bool
	require.NoError(t, inv.Bind(&callee, &isVideo))
	assert.Equal(t, "user-c", callee)
	assert.True(t, isVideo)
}

func TestInvocation_BindMissingArgs(t *testing.T) {
	inv := Invocation{Method: MethodOffer, Args: []json.RawMessage{json.RawMessage(`"b"`)}}

	var target string
	var offer json.RawMessage
	err := inv.Bind(&target, &offer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 arguments")
}

func TestInvocation_BindWrongType(t *testing.T) {
	inv := Invocation{Method: MethodToggleAudio, Args: []json.RawMessage{json.RawMessage(`"room"`), json.RawMessage(`"yes"`)}}

	var room string
	var enabled bool
	require.Error(t, inv.Bind(&room, &enabled))
}

func TestNewEvent_EncodesPositionalArgs(t *testing.T) {
	data, err := json.Marshal(NewEvent(EventCallFailed, CallFailedOffline))
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"CallFailed","args":["offline"]}`, string(data))

	data, err = json.Marshal(NewEvent(EventOnlineUsers))
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"OnlineUsers","args":[]}`, string(data))
}

func TestMessageStatus(t *testing.T) {
	assert.True(t, StatusSent.Advances(StatusDelivered))
	assert.True(t, StatusSent.Advances(StatusRead))
	assert.False(t, StatusRead.Advances(StatusDelivered))
	assert.False(t, StatusDelivered.Advances(StatusDelivered))

	data, err := json.Marshal(StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, `"Delivered"`, string(data))

	var s MessageStatus
	require.NoError(t, json.Unmarshal([]byte(`"Read"`), &s))
	assert.Equal(t, StatusRead, s)
	require.Error(t, json.Unmarshal([]byte(`"Lost"`), &s))
}
