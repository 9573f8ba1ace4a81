package server

import (
	"bytes"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // browser clients connect from anywhere
	},
}

// startWebSocketServer exposes the line protocol over a /ws endpoint for
// browser clients. Each websocket connection gets the same session pipeline
// as a TCP client.
func (s *Server) startWebSocketServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	s.wsServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.config.Host, s.config.WSPort),
		Handler: mux,
	}
	go func() {
		log.Printf("WebSocket server listening on %s (/ws)", s.wsServer.Addr)
		if err := s.wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("WebSocket server error: %v", err)
		}
	}()
}

// HandleWebSocket upgrades the request and bridges it onto a session.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		debugLog.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.serveConn(&wsConn{conn: conn}, conn.RemoteAddr().String())
}

// wsConn adapts a websocket connection to the byte stream the line reader
// expects. Each websocket text message carries one or more protocol lines;
// a missing trailing CRLF is restored so partial frames still parse.
type wsConn struct {
	conn   *websocket.Conn
	buffer []byte
}

func (c *wsConn) Read(p []byte) (int, error) {
	if len(c.buffer) == 0 {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if !bytes.HasSuffix(data, []byte("\r\n")) {
			data = append(data, '\r', '\n')
		}
		c.buffer = data
	}

	n := copy(p, c.buffer)
	c.buffer = c.buffer[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	// One protocol line per websocket frame, without the line terminator.
	// Batched writes carry several lines in one call.
	for _, line := range bytes.Split(bytes.TrimRight(p, "\r\n"), []byte("\r\n")) {
		if len(line) == 0 {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
