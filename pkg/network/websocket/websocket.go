package websocket

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/greenroomhq/greenroom/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 10 * 1024
	pingTime       = pongTime * 9 / 10
	pongTime       = 60 * time.Second
	writeWait      = 10 * time.Second
)

// WS wraps a gorilla websocket connection with
// serialized reader/writer pumps and optional ping/pong keepalive.
type WS struct {
	conn deadlinedConn
	send chan []byte
	log  *logger.Logger

	OnMessage MessageHandler

	pingPong bool
	once     sync.Once
	shutdown sync.WaitGroup
	Done     chan struct{}
}

type MessageHandler func(message []byte, err error)

type Upgrader struct {
	websocket.Upgrader
}

var DefaultUpgrader = Upgrader{
	Upgrader: websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		WriteBufferPool: &sync.Pool{},
	},
}

// NewUpgrader creates an upgrader locked to a single allowed origin.
func NewUpgrader(origin string) *Upgrader {
	u := DefaultUpgrader
	if origin != "" {
		u.CheckOrigin = func(r *http.Request) bool { return r.Header.Get("Origin") == origin }
	}
	return &u
}

// NewServer upgrades an inbound HTTP request to a websocket connection.
// Server connections drive the ping side of the keepalive.
func NewServer(w http.ResponseWriter, r *http.Request, log *logger.Logger, up *Upgrader) (*WS, error) {
	if up == nil {
		up = &DefaultUpgrader
	}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, true, log), nil
}

// NewClient dials a coordinator address.
func NewClient(address url.URL, log *logger.Logger) (*WS, error) {
	conn, _, err := websocket.DefaultDialer.Dial(address.String(), nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, false, log), nil
}

func newSocket(conn *websocket.Conn, pingPong bool, log *logger.Logger) *WS {
	ws := &WS{
		conn:     deadlinedConn{sock: conn, wt: writeWait},
		send:     make(chan []byte, 32),
		log:      log,
		pingPong: pingPong,
		Done:     make(chan struct{}, 1),
	}
	ws.shutdown.Add(2)
	return ws
}

// Listen starts the reader/writer pumps.
// The OnMessage handler must be set before this call.
func (ws *WS) Listen() {
	go ws.writer()
	go ws.reader()
}

// reader pumps messages from the websocket connection to the OnMessage callback.
// Serializes all websocket reads.
func (ws *WS) reader() {
	defer func() {
		close(ws.send)
		ws.shutdown.Done()
		ws.close()
	}()
	ws.conn.setup(func(conn *websocket.Conn) {
		conn.SetReadLimit(maxMessageSize)
		if ws.pingPong {
			_ = conn.SetReadDeadline(time.Now().Add(pongTime))
			conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(pongTime)); return nil })
		} else {
			conn.SetPingHandler(func(string) error { return ws.conn.write(websocket.PongMessage, nil) })
		}
	})
	for {
		message, err := ws.conn.read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.Debug().Err(err).Msg("ws read fail")
			}
			break
		}
		ws.OnMessage(message, err)
	}
}

// writer pumps messages from the send channel to the websocket connection.
// Serializes all websocket writes.
func (ws *WS) writer() {
	var ticker *time.Ticker
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		ws.shutdown.Done()
		ws.close()
	}()
	if ws.pingPong {
		ticker = time.NewTicker(pingTime)
		for {
			select {
			case message, ok := <-ws.send:
				if !ws.handleMessage(message, ok) {
					return
				}
			case <-ticker.C:
				if err := ws.conn.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
	for message := range ws.send {
		if !ws.handleMessage(message, true) {
			return
		}
	}
	_ = ws.conn.write(websocket.CloseMessage, []byte{})
}

func (ws *WS) handleMessage(message []byte, ok bool) bool {
	if !ok {
		_ = ws.conn.write(websocket.CloseMessage, []byte{})
		return false
	}
	return ws.conn.write(websocket.TextMessage, message) == nil
}

func (ws *WS) Write(data []byte) {
	defer func() { recover() }() // send on closed channel during teardown
	ws.send <- data
}

func (ws *WS) Close() {
	_ = ws.conn.write(websocket.CloseMessage, []byte{})
	_ = ws.conn.close()
}

func (ws *WS) close() {
	ws.shutdown.Wait()
	ws.once.Do(func() {
		_ = ws.conn.close()
		ws.Done <- struct{}{}
	})
}
