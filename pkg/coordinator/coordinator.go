package coordinator

import (
	"context"
	"net/http"

	"github.com/greenroomhq/greenroom/pkg/api"
	"github.com/greenroomhq/greenroom/pkg/com"
	"github.com/greenroomhq/greenroom/pkg/config"
	"github.com/greenroomhq/greenroom/pkg/logger"
	"github.com/greenroomhq/greenroom/pkg/monitoring"
	"github.com/greenroomhq/greenroom/pkg/service"
)

// Coordinator is the session-coordination service: an HTTP server with
// two websocket routes (participants and moderators) feeding one hub.
type Coordinator struct {
	conf     config.CoordinatorConfig
	log      *logger.Logger
	hub      *Hub
	services service.Group
}

func New(conf config.CoordinatorConfig, log *logger.Logger) (*Coordinator, error) {
	c := &Coordinator{conf: conf, log: log, hub: NewHub(log)}

	participants := com.NewConnector(
		com.WithTag("p"),
		com.WithOrigin(conf.Coordinator.Origin.ParticipantWs),
	)
	moderators := com.NewConnector(
		com.WithTag("m"),
		com.WithOrigin(conf.Coordinator.Origin.ModeratorWs),
	)

	srv, err := NewHTTPServer(conf, log, func(mux *http.ServeMux) {
		mux.HandleFunc("/ws", c.handleConnection(participants))
		mux.HandleFunc("/wso", c.handleConnection(moderators))
	})
	if err != nil {
		return nil, err
	}
	c.services.Add(srv)
	if conf.Coordinator.Monitoring.IsEnabled() {
		c.services.Add(monitoring.New(conf.Coordinator.Monitoring, "cord", log))
	}
	return c, nil
}

func (c *Coordinator) Start() {
	go c.hub.Run()
	c.services.Start()
}

func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.hub.Stop()
	return c.services.Shutdown(ctx)
}

// handleConnection upgrades a websocket client of either role and plugs
// it into the hub until the transport dies.
func (c *Coordinator) handleConnection(connector *com.Connector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				c.log.Error().Msgf("recovered connection handler from %v", err)
			}
		}()
		client, err := connector.NewServer(w, r, c.log)
		if err != nil {
			c.log.Error().Err(err).Msg("couldn't init the client connection")
			return
		}
		c.hub.Connect(client)
		client.OnPacket(func(in api.In) { c.hub.HandlePacket(client, in) })
		<-client.Listen()
		c.hub.Disconnect(client)
	}
}
