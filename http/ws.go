package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsReply carries either a predict response or an error detail. Status is
// the HTTP status the same body would have produced on POST /api/predict/.
type wsReply struct {
	Status      int           `json:"status"`
	Predictions []interface{} `json:"predictions,omitempty"`
	Detail      interface{}   `json:"detail,omitempty"`
}

// handlePredictStream answers every text frame with one reply frame, in order.
func (a *API) handlePredictStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	requestID := GetRequestID(r.Context())
	logger := a.logger.With(zap.String("request_id", requestID))
	logger.Debug("websocket connected", zap.String("remote", r.RemoteAddr))

	send := make(chan []byte, wsSendBuffer)
	done := make(chan struct{})
	go a.writePump(conn, send, done, logger)

	defer func() {
		close(send)
		<-done
		logger.Debug("websocket disconnected")
	}()

	if a.config.MaxBodyBytes > 0 {
		conn.SetReadLimit(a.config.MaxBodyBytes)
	}
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, body, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var reply wsReply
		if messageType != websocket.TextMessage {
			a.stats.RecordValidationFailure()
			reply = wsReply{Status: http.StatusUnprocessableEntity, Detail: "expected a text frame"}
		} else {
			resp, status, detail := a.predict(body, requestID)
			reply = wsReply{Status: status, Detail: detail}
			if resp != nil {
				reply.Predictions = resp.Predictions
			}
		}

		payload, err := json.Marshal(reply)
		if err != nil {
			logger.Error("encode websocket reply", zap.Error(err))
			return
		}
		select {
		case send <- payload:
		case <-done:
			return
		}
	}
}

func (a *API) writePump(conn *websocket.Conn, send <-chan []byte, done chan<- struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		close(done)
	}()

	for {
		select {
		case message, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
