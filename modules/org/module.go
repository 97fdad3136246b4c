package org

import (
	"github.com/bizdash/orgsync/modules/org/domain/hierarchy"
	"github.com/bizdash/orgsync/modules/org/handlers"
	"github.com/bizdash/orgsync/modules/org/infrastructure/persistence"
	"github.com/bizdash/orgsync/modules/org/presentation/controllers"
	"github.com/bizdash/orgsync/modules/org/services"
	"github.com/bizdash/orgsync/pkg/application"
	"github.com/bizdash/orgsync/pkg/configuration"
)

type ModuleOptions struct {
	Hierarchy       configuration.OrgHierarchyOptions
	RequestIDHeader string
	// Cache is nil when caching is disabled.
	Cache services.HierarchyCache
}

func NewModule(opts *ModuleOptions) application.Module {
	return &Module{options: opts}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	opts := m.options
	if opts == nil {
		opts = &ModuleOptions{}
	}

	svcOpts := []services.Option{
		services.WithEventBus(app.EventPublisher()),
		services.WithLogger(app.Logger()),
		services.WithLimits(hierarchy.Limits{
			MaxDepth: opts.Hierarchy.MaxDepth,
			MaxNodes: opts.Hierarchy.MaxNodes,
		}),
	}
	if opts.Cache != nil {
		svcOpts = append(svcOpts, services.WithCache(opts.Cache))
	}
	hierarchyService := services.NewHierarchyService(
		persistence.NewHierarchyRepository(opts.Hierarchy.LockTimeout),
		svcOpts...,
	)

	app.RegisterServices(
		hierarchyService,
		persistence.NewTenantRepository(),
	)
	handlers.RegisterHierarchyEventHandlers(app.EventPublisher(), opts.Cache, persistence.NewAuditRepository(), app.Logger())

	app.RegisterControllers(
		controllers.NewHierarchyController(hierarchyService, opts.RequestIDHeader),
	)
	return nil
}

func (m *Module) Name() string {
	return "org"
}
