package main

import (
	"context"

	"github.com/greenroomhq/greenroom/pkg/config"
	"github.com/greenroomhq/greenroom/pkg/logger"
	"github.com/greenroomhq/greenroom/pkg/os"
	"github.com/greenroomhq/greenroom/pkg/session"
)

var Version = "?"

func main() {
	conf := config.NewAgentConfig()
	role := session.RoleParticipant
	conf.ParseFlags(&role)

	log := logger.NewConsole(conf.Agent.Debug, "a", false)

	log.Info().Msgf("version %s, role %s", Version, role)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}
	agent, err := session.NewAgent(conf, role, log)
	if err != nil {
		log.Fatal().Err(err).Msg("agent init fail")
	}
	go agent.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		if err := agent.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("agent shutdown errors")
		}
	}()
	<-os.ExpectTermination()
	cancel()
}
