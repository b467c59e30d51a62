package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logstory/logstory-go/internal/config"
	"github.com/logstory/logstory-go/pkg/logstory"
)

func dialWS(t *testing.T, env *testEnv, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg string) wsMessage {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var reply wsMessage
	require.NoError(t, json.Unmarshal(raw, &reply))
	return reply
}

func TestWebsocket_Analyze(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env, nil)

	reply := roundTrip(t, conn, `{"event":"analyze_patterns","data":{"log_type":"SYSLOG","line_limit":2}}`)
	require.Equal(t, eventResults, reply.Event, string(reply.Data))
	var res logstory.ScanResult
	require.NoError(t, json.Unmarshal(reply.Data, &res))
	assert.Equal(t, 3, res.TotalLines)
	assert.Equal(t, 2, res.AnalyzedLines)
	require.Len(t, res.Results, 2)

	// Client-edited patterns replace the configured ones.
	reply = roundTrip(t, conn, `{"event":"analyze_patterns","data":{"log_type":"SYSLOG","patterns":[{"name":"pid","pattern":"\\[(\\d+)\\]","group":1}]}}`)
	require.Equal(t, eventResults, reply.Event)
	require.NoError(t, json.Unmarshal(reply.Data, &res))
	require.Len(t, res.Results[2].Matches, 1)
	assert.Equal(t, "pid", res.Results[2].Matches[0].Name)
	assert.Equal(t, "[2]", res.Results[2].Matches[0].Matches[0].Text)
}

func TestWebsocket_Errors(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env, nil)

	tests := []struct {
		name string
		msg  string
		want string
	}{
		{"not json", `hello`, "Invalid message"},
		{"unknown event", `{"event":"subscribe"}`, "Unknown event: subscribe"},
		{"missing data", `{"event":"analyze_patterns"}`, "Invalid request"},
		{"unknown log type", `{"event":"analyze_patterns","data":{"log_type":"NOPE"}}`, "Log type not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := roundTrip(t, conn, tt.msg)
			assert.Equal(t, eventError, reply.Event)
			var got errorResponse
			require.NoError(t, json.Unmarshal(reply.Data, &got))
			assert.Equal(t, tt.want, got.Error)
		})
	}

	// The connection survives errors.
	reply := roundTrip(t, conn, `{"event":"analyze_patterns","data":{"log_type":"EPOCH"}}`)
	assert.Equal(t, eventResults, reply.Event)
}

func TestWebsocket_RateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.AnalyzeRate = 0.001
		c.AnalyzeBurst = 1
	})
	conn := dialWS(t, env, nil)

	msg := `{"event":"analyze_patterns","data":{"log_type":"EPOCH"}}`
	assert.Equal(t, eventResults, roundTrip(t, conn, msg).Event)

	reply := roundTrip(t, conn, msg)
	assert.Equal(t, eventError, reply.Event)
	assert.Contains(t, string(reply.Data), "Rate limit exceeded")
}

func TestWebsocket_Origin(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.AllowedOrigin = "https://logs.example.com" })
	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	dialWS(t, env, http.Header{"Origin": {"https://logs.example.com"}})
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed string
		want    bool
	}{
		{"no origin", "", "", true},
		{"same host", "http://example.com:8080", "", true},
		{"same host any case", "http://EXAMPLE.com:8080", "", true},
		{"other host", "http://other.com", "", false},
		{"allowed origin", "https://ui.example.com", "https://ui.example.com", true},
		{"wildcard", "http://anything.test", "*", true},
		{"bad origin", "://bad", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://example.com:8080/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkOrigin(r, tt.allowed))
		})
	}
}
