package api

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keytrail/internal/input"
	"keytrail/internal/protocol"
	"keytrail/internal/recorder"
)

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg protocol.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketHello(t *testing.T) {
	env := newTestEnv(t, false)
	conn := dialWS(t, env)

	msg := readMessage(t, conn)
	require.Equal(t, protocol.TypeHello, msg.Type)

	var state protocol.StatePayload
	require.NoError(t, protocol.DecodePayload(msg, &state))
	assert.Equal(t, recorder.Idle, state.State)
	assert.Equal(t, env.rec.GetHistory().ID(), state.ID)
	assert.False(t, state.Recording)
}

func TestWebSocketCommandsAndMoves(t *testing.T) {
	env := newTestEnv(t, false)
	conn := dialWS(t, env)
	readMessage(t, conn) // hello

	require.NoError(t, conn.WriteJSON(protocol.Message{
		Type:    protocol.TypeCommand,
		Payload: protocol.CommandPayload{Action: protocol.ActionStart},
	}))

	msg := readMessage(t, conn)
	require.Equal(t, protocol.TypeState, msg.Type)
	var state protocol.StatePayload
	require.NoError(t, protocol.DecodePayload(msg, &state))
	assert.True(t, state.Recording)

	env.src.Click(3, 4, input.ButtonMiddle, true)

	msg = readMessage(t, conn)
	require.Equal(t, protocol.TypeMove, msg.Type)
	var move protocol.MovePayload
	require.NoError(t, protocol.DecodePayload(msg, &move))
	assert.Equal(t, env.rec.GetHistory().ID(), move.Session)
	assert.Equal(t, recorder.MouseClick, move.Move.MoveType)
	assert.Equal(t, "middle", *move.Move.ButtonName)

	require.NoError(t, conn.WriteJSON(protocol.Message{
		Type:    protocol.TypeCommand,
		Payload: protocol.CommandPayload{Action: protocol.ActionStop},
	}))
	msg = readMessage(t, conn)
	require.Equal(t, protocol.TypeState, msg.Type)
	require.NoError(t, protocol.DecodePayload(msg, &state))
	assert.Equal(t, recorder.Stopped, state.State)
	assert.Equal(t, 1, state.Moves)
}

func TestWebSocketRejectsUnknownAction(t *testing.T) {
	env := newTestEnv(t, false)
	conn := dialWS(t, env)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(protocol.Message{
		Type:    protocol.TypeCommand,
		Payload: protocol.CommandPayload{Action: "rewind"},
	}))

	msg := readMessage(t, conn)
	require.Equal(t, protocol.TypeError, msg.Type)
	var payload protocol.ErrorPayload
	require.NoError(t, protocol.DecodePayload(msg, &payload))
	assert.Contains(t, payload.Error, "rewind")
}
