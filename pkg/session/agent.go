package session

import (
	"context"
	"net/url"
	"time"

	"github.com/greenroomhq/greenroom/pkg/api"
	"github.com/greenroomhq/greenroom/pkg/com"
	"github.com/greenroomhq/greenroom/pkg/config"
	"github.com/greenroomhq/greenroom/pkg/logger"
	"github.com/greenroomhq/greenroom/pkg/monitoring"
	"github.com/greenroomhq/greenroom/pkg/service"
	"github.com/greenroomhq/greenroom/pkg/webrtc"
	"github.com/rs/xid"
)

const (
	RoleParticipant = "participant"
	RoleModerator   = "moderator"
)

// Agent is a headless client of the coordinator, running one of the
// two session roles over a dialed websocket with synthetic media.
// It backs the agent binary and the end-to-end tests.
type Agent struct {
	conf config.AgentConfig
	role string
	log  *logger.Logger

	client      *com.SocketClient
	participant *Participant
	moderator   *Moderator
	services    service.Group
}

func NewAgent(conf config.AgentConfig, role string, log *logger.Logger) (*Agent, error) {
	factory, err := webrtc.NewApiFactory(conf.Webrtc, log, nil)
	if err != nil {
		return nil, err
	}
	engines := func() (Negotiator, error) { return webrtc.NewEngine(factory, log) }

	base, err := url.Parse(conf.Agent.Coordinator)
	if err != nil {
		return nil, err
	}
	a := &Agent{conf: conf, role: role, log: log}

	addr := *base
	switch role {
	case RoleModerator:
		addr.Path = "/wso"
		client, err := com.Dial(addr, "m", log)
		if err != nil {
			return nil, err
		}
		a.client = client
		a.moderator = NewModerator(ModeratorOpts{
			AutoAdvance: true,
			OnSnapshot:  a.advance,
			OnReady:     a.review,
			OnIdle:      func() { log.Info().Msg("queue drained, idle") },
		}, client, engines, log)
	default:
		addr.Path = "/ws"
		client, err := com.Dial(addr, "p", log)
		if err != nil {
			return nil, err
		}
		identity := conf.Agent.Identity
		if identity == "" {
			identity = xid.New().String()
		}
		name := conf.Agent.Name
		if name == "" {
			name = "agent-" + identity
		}
		a.client = client
		a.participant = NewParticipant(ParticipantOpts{
			Identity:      identity,
			Name:          name,
			Meta:          api.ClientMeta{Device: "synthetic"},
			TeardownDelay: conf.Agent.TeardownDelay,
			OnStatus: func(status api.Status) {
				log.Info().Msgf("status %v", status)
			},
		}, client, NewSyntheticCapturer(), engines, log)
	}
	if conf.Agent.Monitoring.IsEnabled() {
		a.services.Add(monitoring.New(conf.Agent.Monitoring, "agent", log))
	}
	return a, nil
}

// Run pumps coordinator packets into the role controller until the
// transport dies.
func (a *Agent) Run() {
	a.services.Start()
	switch a.role {
	case RoleModerator:
		a.client.OnPacket(a.moderator.HandlePacket)
		a.moderator.Connect()
	default:
		a.client.OnPacket(a.participant.HandlePacket)
		a.participant.Join()
	}
	<-a.client.Listen()
}

// advance kicks the queue from a snapshot when nothing is under
// inspection; afterwards NextWaiting keeps the moderator moving.
func (a *Agent) advance(participants []api.ParticipantInfo) {
	if a.moderator.Inspecting() != "" {
		return
	}
	for _, p := range participants {
		if p.Status == api.StatusWaiting {
			a.moderator.Inspect(p.Identity)
			return
		}
	}
}

// review admits the inspected participant after the review period.
func (a *Agent) review(identity string) {
	a.log.Info().Msgf("inspecting %v", identity)
	time.AfterFunc(a.conf.Agent.ReviewDelay, func() {
		if a.moderator.Inspecting() == identity {
			a.moderator.Admit()
		}
	})
}

func (a *Agent) Shutdown(ctx context.Context) error {
	switch a.role {
	case RoleModerator:
		a.moderator.Close()
	default:
		a.participant.Close()
	}
	a.client.Disconnect()
	return a.services.Shutdown(ctx)
}

func (a *Agent) String() string { return "agent:" + a.role }
