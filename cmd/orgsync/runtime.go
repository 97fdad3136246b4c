package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/bizdash/orgsync/modules/org/domain/hierarchy"
	"github.com/bizdash/orgsync/modules/org/handlers"
	"github.com/bizdash/orgsync/modules/org/infrastructure/persistence"
	"github.com/bizdash/orgsync/modules/org/services"
	"github.com/bizdash/orgsync/pkg/composables"
	"github.com/bizdash/orgsync/pkg/configuration"
	"github.com/bizdash/orgsync/pkg/eventbus"
)

type cliRuntime struct {
	conf *configuration.Configuration
	log  *logrus.Logger
	pool *pgxpool.Pool
}

func openRuntime(ctx context.Context) (context.Context, *cliRuntime, error) {
	conf, err := configuration.Load([]string{".env", ".env.local"})
	if err != nil {
		return ctx, nil, withCode(exitUsage, fmt.Errorf("load configuration: %w", err))
	}
	pool, err := connectDB(ctx, conf)
	if err != nil {
		conf.Unload()
		return ctx, nil, err
	}
	rt := &cliRuntime{conf: conf, log: conf.Logger(), pool: pool}
	ctx = composables.WithPool(ctx, pool)
	ctx = composables.WithLogger(ctx, logrus.NewEntry(rt.log).WithField("component", "orgsync-cli"))
	return ctx, rt, nil
}

func (rt *cliRuntime) Close() {
	rt.pool.Close()
	rt.conf.Unload()
}

// hierarchyService wires the service the same way the server does, minus the
// read cache. Committed syncs still produce an audit row.
func (rt *cliRuntime) hierarchyService() *services.HierarchyService {
	bus := eventbus.NewEventPublisher(rt.log)
	handlers.RegisterHierarchyEventHandlers(bus, nil, persistence.NewAuditRepository(), rt.log)
	opts := rt.conf.OrgHierarchy
	return services.NewHierarchyService(
		persistence.NewHierarchyRepository(opts.LockTimeout),
		services.WithEventBus(bus),
		services.WithLogger(rt.log),
		services.WithLimits(hierarchy.Limits{MaxDepth: opts.MaxDepth, MaxNodes: opts.MaxNodes}),
	)
}
