package application

import (
	"fmt"
	"reflect"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/bizdash/orgsync/pkg/eventbus"
)

type Controller interface {
	Register(r *mux.Router)
	Key() string
}

type Module interface {
	Register(app Application) error
	Name() string
}

// Application is the registry modules plug their services, controllers and
// middleware into.
type Application interface {
	DB() *pgxpool.Pool
	EventPublisher() eventbus.EventBus
	Logger() *logrus.Logger
	Controllers() []Controller
	Middleware() []mux.MiddlewareFunc
	RegisterControllers(controllers ...Controller)
	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	RegisterServices(services ...any)
	Service(service any) any
}

type ApplicationOptions struct {
	Pool     *pgxpool.Pool
	EventBus eventbus.EventBus
	Logger   *logrus.Logger
}

func New(opts *ApplicationOptions) Application {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	bus := opts.EventBus
	if bus == nil {
		bus = eventbus.NewEventPublisher(logger)
	}
	return &application{
		pool:           opts.Pool,
		eventPublisher: bus,
		logger:         logger,
		controllers:    make(map[string]Controller),
		services:       make(map[reflect.Type]any),
	}
}

type application struct {
	pool            *pgxpool.Pool
	eventPublisher  eventbus.EventBus
	logger          *logrus.Logger
	services        map[reflect.Type]any
	controllers     map[string]Controller
	controllerOrder []string
	middleware      []mux.MiddlewareFunc
}

func (app *application) DB() *pgxpool.Pool {
	return app.pool
}

func (app *application) EventPublisher() eventbus.EventBus {
	return app.eventPublisher
}

func (app *application) Logger() *logrus.Logger {
	return app.logger
}

func (app *application) Middleware() []mux.MiddlewareFunc {
	return app.middleware
}

// Controllers returns the registered controllers in registration order.
func (app *application) Controllers() []Controller {
	controllers := make([]Controller, 0, len(app.controllerOrder))
	for _, key := range app.controllerOrder {
		controllers = append(controllers, app.controllers[key])
	}
	return controllers
}

func (app *application) RegisterControllers(controllers ...Controller) {
	for _, c := range controllers {
		if _, exists := app.controllers[c.Key()]; !exists {
			app.controllerOrder = append(app.controllerOrder, c.Key())
		}
		app.controllers[c.Key()] = c
	}
}

func (app *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	app.middleware = append(app.middleware, middleware...)
}

// RegisterServices registers a new service in the application by its type
func (app *application) RegisterServices(services ...any) {
	for _, service := range services {
		serviceType := reflect.TypeOf(service).Elem()
		app.services[serviceType] = service
	}
}

// Service retrieves a service by its type
func (app *application) Service(service any) any {
	serviceType := reflect.TypeOf(service)
	svc, exists := app.services[serviceType]
	if !exists {
		panic(fmt.Sprintf("service %s not found", serviceType.Name()))
	}
	return svc
}
