package main

import (
	"context"

	"github.com/greenroomhq/greenroom/pkg/config"
	"github.com/greenroomhq/greenroom/pkg/coordinator"
	"github.com/greenroomhq/greenroom/pkg/logger"
	"github.com/greenroomhq/greenroom/pkg/os"
)

var Version = "?"

func main() {
	conf := config.NewCoordinatorConfig()
	conf.ParseFlags()

	log := logger.NewConsole(conf.Coordinator.Debug, "c", false)

	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}
	c, err := coordinator.New(conf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("coordinator init fail")
	}
	c.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		if err := c.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("service shutdown errors")
		}
	}()
	<-os.ExpectTermination()
	cancel()
}
