package transport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/wisplib/wisp/pkg/wisp"
)

func testLog() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

// fakeServer upgrades one connection, advertises a socket id, delivers a
// channel frame, then echoes whatever the client sends back inside a frame.
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade: %s", err)
			return
		}
		defer ws.Close()

		ws.WriteMessage(websocket.TextMessage,
			[]byte(`{"event":"wisp:connection_established","data":{"socket_id":"42.17"}}`))
		ws.WriteMessage(websocket.TextMessage,
			[]byte(`{"event":"greeting","channel":"room","data":{"hello":true}}`))

		_, payload, err := ws.ReadMessage()
		if err != nil {
			return
		}
		ws.WriteMessage(websocket.TextMessage,
			[]byte(`{"event":"echo","channel":"room","data":`+string(payload)+`}`))

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialReceiveAndSend(t *testing.T) {
	srv := fakeServer(t)
	defer srv.Close()

	frames := make(chan wisp.Frame, 4)
	conn, err := Dial(wsURL(srv), Config{
		Log:     testLog(),
		Handler: func(f wisp.Frame) { frames <- f },
	})
	if err != nil {
		t.Fatalf("Dial: %s", err)
	}
	defer conn.Close()

	f := waitFrame(t, frames)
	if f.Event != "greeting" || f.Channel != "room" {
		t.Errorf("Invalid first frame: %+v", f)
	}

	// The connection established frame precedes the greeting, so by now the
	// advertised socket id must have replaced the local placeholder.
	if got := conn.SocketID(); got != "42.17" {
		t.Errorf("Wanted socket id 42.17, got %q", got)
	}

	if err := conn.Send([]byte(`{"ping":1}`)); err != nil {
		t.Fatalf("Send: %s", err)
	}
	f = waitFrame(t, frames)
	if f.Event != "echo" || string(f.Data) != `{"ping":1}` {
		t.Errorf("Invalid echo frame: %+v", f)
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	srv := fakeServer(t)
	defer srv.Close()

	conn, err := Dial(wsURL(srv), Config{Log: testLog()})
	if err != nil {
		t.Fatalf("Dial: %s", err)
	}
	conn.Close()

	select {
	case <-conn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Connection did not finish after Close")
	}

	if err := conn.Send([]byte(`{}`)); err == nil {
		t.Error("Send succeeded on a closed connection")
	}
}

func TestLocalSocketIDBeforeHandshake(t *testing.T) {
	upgrader := websocket.Upgrader{}
	silent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer silent.Close()

	conn, err := Dial(wsURL(silent), Config{Log: testLog()})
	if err != nil {
		t.Fatalf("Dial: %s", err)
	}
	defer conn.Close()

	if conn.SocketID() == "" {
		t.Error("No placeholder socket id before the server advertises one")
	}
}

func waitFrame(t *testing.T, frames <-chan wisp.Frame) wisp.Frame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for frame")
		return wisp.Frame{}
	}
}
