package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialStream(t *testing.T, h http.Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/predict"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPredictStream(t *testing.T) {
	conn := dialStream(t, newTestHandler(&fakeModel{offset: 0.3456}, APIConfig{}))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"data":[`+ride(2)+`,`+ride(1)+`]}`)))
	var reply wsReply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, http.StatusOK, reply.Status)
	assert.Equal(t, []interface{}{20.35, 10.35}, reply.Predictions)
	assert.Nil(t, reply.Detail)

	// The connection stays usable after a rejected frame.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"data":[]}`)))
	reply = wsReply{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, http.StatusUnprocessableEntity, reply.Status)
	assert.Empty(t, reply.Predictions)
	detail, err := json.Marshal(reply.Detail)
	require.NoError(t, err)
	assert.Contains(t, string(detail), "at least 1 items")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"data":[`+ride(4)+`]}`)))
	reply = wsReply{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, []interface{}{40.35}, reply.Predictions)
}

func TestPredictStreamModelUnavailable(t *testing.T) {
	conn := dialStream(t, newTestHandler(nil, APIConfig{ModelPath: "gone.model"}))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"data":[`+ride(1)+`]}`)))
	var reply wsReply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, http.StatusServiceUnavailable, reply.Status)
	assert.Equal(t, "Model not found: gone.model", reply.Detail)
}

func TestPredictStreamRejectsBinaryFrames(t *testing.T) {
	conn := dialStream(t, newTestHandler(&fakeModel{}, APIConfig{}))

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}))
	var reply wsReply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, http.StatusUnprocessableEntity, reply.Status)
	assert.Equal(t, "expected a text frame", reply.Detail)
}
