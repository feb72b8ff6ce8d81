package transport

import (
	"chat-relay/auth"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type relayFixture struct {
	server   *httptest.Server
	provider *auth.TokenProvider
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	log := slog.Default()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	provider := auth.NewTokenProvider("test-secret", time.Hour)
	stats := observability.NewRelayStats()
	registry := runtime.NewRegistry()
	messages := repositories.NewMessageLog(db, log, nil)
	directory := repositories.NewDirectory(db)
	index := repositories.NewSearchIndex(writer, log)
	router := runtime.NewRouter(log, registry, messages, index, nil, stats, true)

	handler := NewHandler(log, registry, router, provider, messages, directory, index, stats,
		HandlerConfig{
			ConnectionBufferSize: 16,
			WriteTimeout:         5 * time.Second,
			SearchLimit:          10,
		})

	server := httptest.NewServer(handler.SetupRouter())
	t.Cleanup(server.Close)
	return &relayFixture{server: server, provider: provider}
}

func (f *relayFixture) wsURL(token string) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/chat/ws?token=" + token
}

// dial connects an authenticated websocket client and waits until the relay
// lists the identity as online, so follow-up fan-outs are deterministic.
func (f *relayFixture) dial(t *testing.T, userID int64, name string) *websocket.Conn {
	t.Helper()
	token, err := f.provider.GenerateToken(userID, name)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		for _, user := range f.onlineUsers(t) {
			if user == fmt.Sprintf("%d", userID) {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func (f *relayFixture) onlineUsers(t *testing.T) []string {
	t.Helper()
	resp, err := http.Get(f.server.URL + "/chat/all_users")
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload struct {
		UsersList []string `json:"users_list"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload.UsersList
}

func (f *relayFixture) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	request, err := http.NewRequest(http.MethodGet, f.server.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	return resp
}

func readFrame(t *testing.T, conn *websocket.Conn) OutboundFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame OutboundFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestHandler_Rejects_Invalid_Credential(t *testing.T) {
	req := require.New(t)
	fixture := newRelayFixture(t)

	// When dialing with a bogus token
	conn, _, err := websocket.DefaultDialer.Dial(fixture.wsURL("garbage"), nil)
	req.NoError(err)
	defer conn.Close()

	// Then the relay closes the connection with a policy violation
	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err = conn.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.ClosePolicyViolation), "err=%v", err)

	// And nobody went online
	req.Empty(fixture.onlineUsers(t))
}

func TestHandler_Chat_Scenario(t *testing.T) {
	req := require.New(t)
	fixture := newRelayFixture(t)

	// Given Alice, Bob and Clara connecting in that order
	alice := fixture.dial(t, 1, "alice")
	bob := fixture.dial(t, 2, "bob")
	req.Equal(OutboundFrame{Sender: "system", Receiver: "all", Text: "bob joined the chat"}, readFrame(t, alice))
	clara := fixture.dial(t, 3, "clara")
	req.Equal(OutboundFrame{Sender: "system", Receiver: "all", Text: "clara joined the chat"}, readFrame(t, alice))
	req.Equal(OutboundFrame{Sender: "system", Receiver: "all", Text: "clara joined the chat"}, readFrame(t, bob))

	// When Alice broadcasts
	req.NoError(alice.WriteJSON(InboundFrame{Receiver: "all", Text: "hello room"}))

	// Then everyone receives it, Alice through her echo
	broadcast := OutboundFrame{Sender: "1", Receiver: "all", Text: "hello room"}
	req.Equal(broadcast, readFrame(t, bob))
	req.Equal(broadcast, readFrame(t, clara))
	req.Equal(broadcast, readFrame(t, alice))

	// When Bob messages Clara directly
	req.NoError(bob.WriteJSON(InboundFrame{Receiver: "3", Text: "yo"}))

	// Then only Clara and Bob's echo see it
	direct := OutboundFrame{Sender: "2", Receiver: "3", Text: "yo"}
	req.Equal(direct, readFrame(t, clara))
	req.Equal(direct, readFrame(t, bob))

	// And presence lists all three identities in order
	req.Equal([]string{"1", "2", "3"}, fixture.onlineUsers(t))

	// When Clara disconnects
	req.NoError(clara.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	req.NoError(clara.Close())

	// Then Alice and Bob each hear one departure. Frames per recipient are
	// FIFO, so Alice's very next frame being the departure proves the direct
	// message never reached her.
	departure := OutboundFrame{Sender: "system", Receiver: "all", Text: "clara left the chat"}
	req.Equal(departure, readFrame(t, alice))
	req.Equal(departure, readFrame(t, bob))

	req.Eventually(func() bool {
		users := fixture.onlineUsers(t)
		return len(users) == 2 && users[0] == "1" && users[1] == "2"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_History(t *testing.T) {
	req := require.New(t)
	fixture := newRelayFixture(t)

	alice := fixture.dial(t, 1, "alice")
	req.NoError(alice.WriteJSON(InboundFrame{Receiver: "all", Text: "for the record"}))
	// The echo confirms the message went through the router
	req.Equal("for the record", readFrame(t, alice).Text)

	token, err := fixture.provider.GenerateToken(1, "alice")
	req.NoError(err)

	// When Alice queries her history
	resp := fixture.get(t, "/chat/history", token)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var payload struct {
		Messages []struct {
			Sender     string `json:"sender"`
			SenderName string `json:"sender_name"`
			Receiver   string `json:"receiver"`
			Text       string `json:"text"`
		} `json:"messages"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&payload))

	// Then her broadcast is there with its resolved display name
	req.Len(payload.Messages, 1)
	req.Equal("1", payload.Messages[0].Sender)
	req.Equal("alice", payload.Messages[0].SenderName)
	req.Equal("all", payload.Messages[0].Receiver)
	req.Equal("for the record", payload.Messages[0].Text)
}

func TestHandler_History_Requires_Credential(t *testing.T) {
	req := require.New(t)
	fixture := newRelayFixture(t)

	resp := fixture.get(t, "/chat/history", "")
	defer resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_Search(t *testing.T) {
	req := require.New(t)
	fixture := newRelayFixture(t)

	alice := fixture.dial(t, 1, "alice")
	req.NoError(alice.WriteJSON(InboundFrame{Receiver: "all", Text: "deployment finished"}))
	req.Equal("deployment finished", readFrame(t, alice).Text)

	token, err := fixture.provider.GenerateToken(1, "alice")
	req.NoError(err)

	// When searching for a word of the broadcast
	resp := fixture.get(t, "/chat/search?q=deployment", token)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var payload struct {
		Hits []repositories.SearchHit `json:"hits"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&payload))
	req.Len(payload.Hits, 1)
	req.Equal("deployment finished", payload.Hits[0].Text)

	// And an empty query is rejected
	resp = fixture.get(t, "/chat/search", token)
	defer resp.Body.Close()
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_Health(t *testing.T) {
	req := require.New(t)
	fixture := newRelayFixture(t)

	resp, err := http.Get(fixture.server.URL + "/healthz")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var payload struct {
		Status    string `json:"status"`
		Connected int    `json:"connected"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&payload))
	req.Equal("ok", payload.Status)
	req.Zero(payload.Connected)
}
