// Terminal client: connects to a room over websocket, runs the local
// reconciliation engine, and renders the grid as an isometric diamond with
// termbox.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	termbox "github.com/nsf/termbox-go"

	"tilerise/internal/client"
	"tilerise/internal/grid"
	"tilerise/internal/logkit"
)

const tickInterval = 50 * time.Millisecond

// wsConn serializes intent writes onto one websocket connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

func main() {
	var (
		addr    = flag.String("addr", "localhost:8080", "server host:port")
		roomID  = flag.String("room", "lobby", "room to join")
		name    = flag.String("name", "", "display name")
		session = flag.String("session", "", "session id to resume")
		spawnTX = flag.Int("tx", 12, "preferred spawn tile x")
		spawnTY = flag.Int("ty", 12, "preferred spawn tile y")
	)
	flag.Parse()

	if *name == "" {
		host, _ := os.Hostname()
		*name = fmt.Sprintf("player-%s", host)
	}

	logger, err := logkit.New("tilerise-client.log")
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer logger.Sync()

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	q := u.Query()
	q.Set("room", *roomID)
	if *session != "" {
		q.Set("session", *session)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial %s: %v", u.String(), err)
	}
	out := &wsConn{conn: conn}
	defer conn.Close()

	eng := client.New(*name, grid.Tile{X: *spawnTX, Y: *spawnTY}, out, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				logger.Infow("connection closed", "err", err)
				return
			}
			eng.HandleMessage(payload)
		}
	}()

	if err := termbox.Init(); err != nil {
		log.Fatalf("termbox: %v", err)
	}
	termbox.SetInputMode(termbox.InputEsc | termbox.InputMouse)
	defer termbox.Close()

	view := newUI(eng, out, logger)
	events := make(chan termbox.Event, 16)
	go func() {
		for {
			events <- termbox.PollEvent()
		}
	}()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev := <-events:
			if !view.handleEvent(ev) {
				out.Close()
				eng.Leave()
				return
			}
		case <-ticker.C:
			eng.Advance()
			view.draw()
		}
	}
}
