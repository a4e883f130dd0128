package logsink

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// GatewayMessage is the frame written to the log gateway for each entry.
type GatewayMessage struct {
	Type    string    `json:"type"`
	Source  string    `json:"source"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Gateway mirrors log entries to a remote collector over a WebSocket
// connection. Write failures are reported on the fallback logger and never
// block the caller for longer than the write deadline.
type Gateway struct {
	url      string
	token    string
	source   string
	fallback *log.Logger
	now      func() time.Time

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewGateway creates a gateway sink. source tags every frame (usually the bot
// username).
func NewGateway(url, token, source string) *Gateway {
	return &Gateway{
		url:      url,
		token:    token,
		source:   source,
		fallback: log.Default(),
		now:      time.Now,
	}
}

// Connect establishes the WebSocket connection.
func (g *Gateway) Connect() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	header := make(map[string][]string)
	if g.token != "" {
		header["Authorization"] = []string{"Bearer " + g.token}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.Dial(g.url, header)
	if err != nil {
		return fmt.Errorf("connect to log gateway: %w", err)
	}

	g.conn = conn
	return nil
}

// SetSource changes the tag attached to subsequent frames.
func (g *Gateway) SetSource(source string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.source = source
}

func (g *Gateway) Infof(format string, args ...any) {
	g.send(newEntry(Info, format, args))
}

func (g *Gateway) Errorf(format string, args ...any) {
	g.send(newEntry(Error, format, args))
}

func (g *Gateway) send(e Entry) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil {
		return
	}

	data, err := json.Marshal(GatewayMessage{
		Type:    "log",
		Source:  g.source,
		Level:   e.Level,
		Message: e.Message,
		Time:    g.now().UTC(),
	})
	if err != nil {
		g.fallback.Printf("log gateway: marshal entry: %v", err)
		return
	}

	g.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := g.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// Drop the connection; entries are best effort once it breaks.
		g.fallback.Printf("log gateway: write failed, disconnecting: %v", err)
		g.conn.Close()
		g.conn = nil
	}
}

// Close closes the WebSocket connection.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn != nil {
		err := g.conn.Close()
		g.conn = nil
		return err
	}
	return nil
}
