package config

import (
	goflag "flag"
	"time"

	"github.com/spf13/pflag"
)

type CoordinatorConfig struct {
	Coordinator Coordinator
	Webrtc      Webrtc
}

type Coordinator struct {
	Debug      bool
	Monitoring Monitoring
	Origin     struct {
		ParticipantWs string
		ModeratorWs   string
	}
	Server Server
}

type AgentConfig struct {
	Agent  Agent
	Webrtc Webrtc
}

type Agent struct {
	Debug       bool
	Coordinator string `fig:"coordinator" default:"ws://localhost:8000"`
	// delay before the negotiation teardown after a terminal
	// admit/remove, so the other end can render the outcome
	TeardownDelay time.Duration `fig:"teardowndelay" default:"3s"`
	// how long a synthetic moderator inspects before admitting
	ReviewDelay time.Duration `fig:"reviewdelay" default:"10s"`
	Identity    string
	Name        string
	Monitoring  Monitoring
}

type Server struct {
	Address string `fig:"address" default:":8000"`
	Https   bool
	Tls     struct {
		Address   string
		Domain    string
		HttpsKey  string
		HttpsCert string
	}
}

func (s *Server) GetAddr() string {
	if s.Https {
		return s.Tls.Address
	}
	return s.Address
}

type Monitoring struct {
	Port             int
	URLPrefix        string
	MetricEnabled    bool `fig:"metricenabled"`
	ProfilingEnabled bool `fig:"profilingenabled"`
}

func (m *Monitoring) IsEnabled() bool { return m.MetricEnabled || m.ProfilingEnabled }

type Webrtc struct {
	DisableDefaultInterceptors bool
	IceServers                 []IceServer
	IcePorts                   struct {
		Min uint16
		Max uint16
	}
	IceIpMap string
	LogLevel int
}

type IceServer struct {
	Urls       string `json:"urls,omitempty"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

func (w *Webrtc) HasPortRange() bool { return w.IcePorts.Min > 0 && w.IcePorts.Max > 0 }
func (w *Webrtc) HasIceIpMap() bool  { return w.IceIpMap != "" }

// allows custom config dir
var configDir string

func NewCoordinatorConfig() (conf CoordinatorConfig) {
	if err := LoadConfig(&conf, configDir); err != nil {
		panic(err)
	}
	return
}

func NewAgentConfig() (conf AgentConfig) {
	if err := LoadConfig(&conf, configDir); err != nil {
		panic(err)
	}
	return
}

func (c *CoordinatorConfig) ParseFlags() {
	pflag.BoolVarP(&c.Coordinator.Debug, "debug", "d", c.Coordinator.Debug, "Set debug mode")
	pflag.StringVarP(&c.Coordinator.Server.Address, "address", "a", c.Coordinator.Server.Address, "HTTP server address (host:port)")
	pflag.IntVar(&c.Coordinator.Monitoring.Port, "monitoring.port", c.Coordinator.Monitoring.Port, "Monitoring server port")
	pflag.StringVarP(&configDir, "conf", "c", configDir, "Set custom configuration directory")
	pflag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	pflag.Parse()
}

func (c *AgentConfig) ParseFlags(role *string) {
	pflag.BoolVarP(&c.Agent.Debug, "debug", "d", c.Agent.Debug, "Set debug mode")
	pflag.StringVarP(&c.Agent.Coordinator, "coordinator", "u", c.Agent.Coordinator, "Coordinator websocket base URL")
	pflag.StringVarP(role, "role", "r", *role, "Agent role: [participant, moderator]")
	pflag.StringVarP(&configDir, "conf", "c", configDir, "Set custom configuration directory")
	pflag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	pflag.Parse()
}
