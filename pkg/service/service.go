package service

import (
	"context"
	"errors"
	"fmt"
)

// Service is anything an application wires into its lifecycle group.
type Service interface{}

// RunnableService is a service with its own run loop.
type RunnableService interface {
	Service

	Run()
	Shutdown(ctx context.Context) error
}

// Group owns the lifecycle of an application's services.
type Group struct {
	services []Service
}

func (g *Group) Add(services ...Service) { g.services = append(g.services, services...) }

// Start runs every runnable service in registration order.
func (g *Group) Start() {
	for _, s := range g.services {
		if v, ok := s.(RunnableService); ok {
			v.Run()
		}
	}
}

// Shutdown stops every runnable service, collecting the failures
// instead of aborting on the first one.
func (g *Group) Shutdown(ctx context.Context) error {
	var errs []error
	for _, s := range g.services {
		if v, ok := s.(RunnableService); ok {
			if err := v.Shutdown(ctx); err != nil && err != context.Canceled {
				errs = append(errs, fmt.Errorf("shutdown of [%s]: %w", s, err))
			}
		}
	}
	return errors.Join(errs...)
}
