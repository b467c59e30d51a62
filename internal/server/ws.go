package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/logstory/logstory-go/pkg/logstory"
)

const (
	wsBufferSize   = 4096
	wsMaxMessage   = maxRequestBody
	wsWriteTimeout = 10 * time.Second

	eventAnalyze = "analyze_patterns"
	eventResults = "analysis_results"
	eventError   = "error"
)

// wsMessage is the envelope for every websocket message in both directions.
type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// checkOrigin accepts requests without an Origin header, from the same host,
// or from allowedOrigin ("*" accepts any).
func checkOrigin(r *http.Request, allowedOrigin string) bool {
	if allowedOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	if allowedOrigin == "" {
		return false
	}
	ao, err := url.Parse(allowedOrigin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, ao.Host)
}

// handleWebsocket answers analyze_patterns requests in arrival order. Each
// request gets exactly one analysis_results or error reply.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Info("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	var limiter *rate.Limiter
	if s.cfg.AnalyzeRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.AnalyzeRate), s.cfg.AnalyzeBurst)
	}

	for {
		typ, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket read failed", "remote", r.RemoteAddr, "error", err)
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}

		reply := s.handleWSMessage(r.WithContext(ctx), limiter, raw)
		if err := s.writeWS(conn, reply); err != nil {
			s.log.Debug("websocket write failed", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
}

func (s *Server) handleWSMessage(r *http.Request, limiter *rate.Limiter, raw []byte) wsMessage {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return wsError("Invalid message")
	}
	if msg.Event != eventAnalyze {
		return wsError("Unknown event: " + msg.Event)
	}
	if limiter != nil && !limiter.Allow() {
		return wsError("Rate limit exceeded")
	}

	var req logstory.Request
	if len(msg.Data) == 0 {
		return wsError("Invalid request")
	}
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return wsError("Invalid request")
	}
	res, status, errMsg := s.analyze(r, req)
	if status != http.StatusOK {
		return wsError(errMsg)
	}
	data, err := json.Marshal(res)
	if err != nil {
		return wsError(err.Error())
	}
	return wsMessage{Event: eventResults, Data: data}
}

func wsError(msg string) wsMessage {
	data, _ := json.Marshal(errorResponse{Error: msg})
	return wsMessage{Event: eventError, Data: data}
}

func (s *Server) writeWS(conn *websocket.Conn, msg wsMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, body)
}
