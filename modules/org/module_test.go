package org

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/bizdash/orgsync/modules/org/infrastructure/persistence"
	"github.com/bizdash/orgsync/modules/org/services"
	"github.com/bizdash/orgsync/pkg/application"
	"github.com/bizdash/orgsync/pkg/configuration"
)

func TestModule_Register(t *testing.T) {
	logger, _ := test.NewNullLogger()
	app := application.New(&application.ApplicationOptions{Logger: logger})
	cache := services.NewMemoryCache(time.Minute)

	m := NewModule(&ModuleOptions{
		Hierarchy: configuration.OrgHierarchyOptions{MaxDepth: 8, MaxNodes: 100},
		Cache:     cache,
	})
	require.Equal(t, "org", m.Name())
	require.NoError(t, m.Register(app))

	svc := app.Service(services.HierarchyService{}).(*services.HierarchyService)
	require.Equal(t, 8, svc.Limits().MaxDepth)
	require.NotNil(t, app.Service(persistence.TenantRepository{}))

	require.Len(t, app.Controllers(), 1)
	require.Equal(t, "/org/api", app.Controllers()[0].Key())

	// The event handler is subscribed: the cache entry is dropped even though
	// the audit insert fails without a pool.
	tenant := uuid.New()
	ctx := context.Background()
	cache.Set(ctx, &services.HierarchyView{TenantID: tenant, Revision: 1})
	err := app.EventPublisher().PublishE(ctx, &services.HierarchySynchronizedEvent{TenantID: tenant, Revision: 2})
	require.Error(t, err)
	_, ok := cache.Get(ctx, tenant, 1)
	require.False(t, ok)
}
