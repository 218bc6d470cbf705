package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/petstore-api/internal/api/http/handlers"
	"github.com/spec-kit/petstore-api/internal/auth"
	"github.com/spec-kit/petstore-api/internal/crud"
	"github.com/spec-kit/petstore-api/internal/docs"
	"github.com/spec-kit/petstore-api/internal/observability"
	"github.com/spec-kit/petstore-api/internal/orm"
)

const apiPrefix = "/api"

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health   *handlers.HealthHandler
	Login    *handlers.LoginHandler
	Resolver *auth.Resolver
	Metrics  *observability.Metrics
	Docs     docs.Options
	// DataClient is the shared, unscoped client; each request gets a scoped view of it.
	DataClient  orm.Client
	APIEndpoint string
	BcryptCost  int
}

// RegisterRoutes wires HTTP routes. Login and docs are registered before the
// CRUD mount so they take precedence under the shared /api prefix.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) error {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Metrics.Handler())

	app.Post(apiPrefix+"/login", cfg.Login.Login)

	if err := docs.Mount(app, apiPrefix+"/docs", cfg.Docs); err != nil {
		return err
	}

	api := app.Group(apiPrefix, cfg.Resolver.Middleware())
	crud.Mount(api, crud.Options{
		Endpoint: cfg.APIEndpoint,
		GetClient: func(c *fiber.Ctx) orm.Client {
			return orm.WithPresets(cfg.DataClient, auth.CallerFromContext(c), orm.WithBcryptCost(cfg.BcryptCost))
		},
	})
	return nil
}
