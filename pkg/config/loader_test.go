package config

import (
	"testing"
	"time"
)

func TestEnvDefaults(t *testing.T) {
	var conf AgentConfig
	if err := LoadConfigEnv(&conf); err != nil {
		t.Fatal(err)
	}
	if conf.Agent.Coordinator != "ws://localhost:8000" {
		t.Fatalf("coordinator = %q", conf.Agent.Coordinator)
	}
	if conf.Agent.TeardownDelay != 3*time.Second {
		t.Fatalf("teardown delay = %v", conf.Agent.TeardownDelay)
	}
	if conf.Agent.ReviewDelay != 10*time.Second {
		t.Fatalf("review delay = %v", conf.Agent.ReviewDelay)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("GREENROOM_AGENT_COORDINATOR", "ws://example.test:9000")
	t.Setenv("GREENROOM_AGENT_DEBUG", "true")
	t.Setenv("GREENROOM_AGENT_TEARDOWNDELAY", "1s")

	var conf AgentConfig
	if err := LoadConfigEnv(&conf); err != nil {
		t.Fatal(err)
	}
	if conf.Agent.Coordinator != "ws://example.test:9000" {
		t.Fatalf("coordinator = %q", conf.Agent.Coordinator)
	}
	if !conf.Agent.Debug {
		t.Fatal("debug not overridden")
	}
	if conf.Agent.TeardownDelay != time.Second {
		t.Fatalf("teardown delay = %v", conf.Agent.TeardownDelay)
	}
}

func TestServerAddr(t *testing.T) {
	var s Server
	s.Address = ":8000"
	s.Tls.Address = ":443"
	if got := s.GetAddr(); got != ":8000" {
		t.Fatalf("addr = %q", got)
	}
	s.Https = true
	if got := s.GetAddr(); got != ":443" {
		t.Fatalf("addr = %q", got)
	}
}
