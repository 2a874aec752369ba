package com

import (
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/greenroomhq/greenroom/pkg/api"
	"github.com/greenroomhq/greenroom/pkg/logger"
	"github.com/greenroomhq/greenroom/pkg/network/websocket"
)

// SocketClient is one addressable duplex channel: a websocket connection
// plus the packet codec and a direction-aware logger.
type SocketClient struct {
	id   Uid
	sock *websocket.WS
	log  *logger.Logger
}

type Connector struct {
	tag string
	wu  *websocket.Upgrader
}

type Option = func(c *Connector)

func WithOrigin(origin string) Option {
	return func(c *Connector) { c.wu = websocket.NewUpgrader(origin) }
}
func WithTag(tag string) Option { return func(c *Connector) { c.tag = tag } }

func NewConnector(opts ...Option) *Connector {
	c := &Connector{}
	for _, opt := range opts {
		opt(c)
	}
	if c.wu == nil {
		c.wu = &websocket.DefaultUpgrader
	}
	return c
}

// NewServer upgrades an inbound request into a connected client.
func (co *Connector) NewServer(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*SocketClient, error) {
	ws, err := websocket.NewServer(w, r, log, co.wu)
	if err != nil {
		return nil, err
	}
	return newSocketClient(ws, co.tag, true, log), nil
}

// Dial connects to a coordinator address as a client.
func Dial(address url.URL, tag string, log *logger.Logger) (*SocketClient, error) {
	ws, err := websocket.NewClient(address, log)
	if err != nil {
		return nil, err
	}
	return newSocketClient(ws, tag, false, log), nil
}

func newSocketClient(sock *websocket.WS, tag string, isServer bool, log *logger.Logger) *SocketClient {
	id := NewUid()
	dir := "→"
	if isServer {
		dir = "←"
	}
	clog := log.Extend(log.With().
		Str("cid", id.Short()).
		Str("tag", tag).
		Str(logger.DirectionField, dir),
	)
	clog.Debug().Msg("Connect")
	return &SocketClient{id: id, sock: sock, log: clog}
}

// OnPacket sets the inbound packet handler and starts the socket pumps.
// Malformed packets are logged and dropped.
func (c *SocketClient) OnPacket(fn func(in api.In)) {
	c.sock.OnMessage = func(message []byte, err error) {
		if err != nil {
			c.log.Error().Err(err).Send()
			return
		}
		var in api.In
		if err := json.Unmarshal(message, &in); err != nil {
			c.log.Error().Err(err).Msg("malformed packet")
			return
		}
		c.log.Debug().Str(logger.DirectionField, "←").Msgf("%v", in.T)
		fn(in)
	}
	c.sock.Listen()
}

// Notify sends a packet without waiting for anything back.
func (c *SocketClient) Notify(t api.PT, payload any) {
	c.log.Debug().Str(logger.DirectionField, "→").Msgf("%v", t)
	r, err := json.Marshal(api.Out{T: t, Payload: payload})
	if err != nil {
		c.log.Error().Err(err).Msgf("encode fail for %v", t)
		return
	}
	c.sock.Write(r)
}

// Forward re-sends an already decoded packet to this endpoint,
// substituting its payload.
func (c *SocketClient) Forward(t api.PT, payload any) { c.Notify(t, payload) }

func (c *SocketClient) Disconnect() {
	c.sock.Close()
	c.log.Debug().Str(logger.DirectionField, "x").Msg("Close")
}

func (c *SocketClient) Id() Uid               { return c.id }
func (c *SocketClient) Listen() chan struct{} { return c.sock.Done }
func (c *SocketClient) String() string        { return c.id.String() }
