package configuration

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/bizdash/orgsync/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c, err := Load([]string{".env", ".env.local"})
	if err != nil {
		panic(err)
	}
	return c
})

// LoadEnv loads the env files that exist, looking in the working directory
// first and then in the nearest directory containing go.mod.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if p, ok := resolveEnvFile(file); ok {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func resolveEnvFile(file string) (string, bool) {
	if fileExists(file) {
		return file, true
	}
	if filepath.IsAbs(file) {
		return "", false
	}
	root, ok := goModRoot()
	if !ok {
		return "", false
	}
	p := filepath.Join(root, file)
	return p, fileExists(p)
}

func goModRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if fileExists(filepath.Join(dir, "go.mod")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"orgsync"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"10"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/metrics"`
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"orgsync"`
}

type RateLimitOptions struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"false"`
	// Rate uses the limiter format, e.g. "100-M" for 100 requests per minute.
	Rate    string `env:"RATE_LIMIT_RATE" envDefault:"600-M"`
	Storage string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
}

type CORSOptions struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

type RedisOptions struct {
	URL string `env:"REDIS_URL" envDefault:"localhost:6379"`
	DB  int    `env:"REDIS_DB" envDefault:"0"`
}

// OrgHierarchyOptions bounds the synchronization engine.
type OrgHierarchyOptions struct {
	MaxDepth    int           `env:"ORG_HIERARCHY_MAX_DEPTH" envDefault:"64"`
	MaxNodes    int           `env:"ORG_HIERARCHY_MAX_NODES" envDefault:"10000"`
	LockTimeout time.Duration `env:"ORG_HIERARCHY_LOCK_TIMEOUT" envDefault:"5s"`
	Cache       string        `env:"ORG_HIERARCHY_CACHE" envDefault:"memory"` // none, memory or redis
	CacheTTL    time.Duration `env:"ORG_HIERARCHY_CACHE_TTL" envDefault:"10m"`
}

func (o *OrgHierarchyOptions) Validate() error {
	if o.MaxDepth < 1 || o.MaxDepth > 1024 {
		return fmt.Errorf("ORG_HIERARCHY_MAX_DEPTH must be within 1..1024, got %d", o.MaxDepth)
	}
	if o.MaxNodes < 1 {
		return fmt.Errorf("ORG_HIERARCHY_MAX_NODES must be positive, got %d", o.MaxNodes)
	}
	if o.LockTimeout < 0 {
		return fmt.Errorf("ORG_HIERARCHY_LOCK_TIMEOUT must be non-negative, got %s", o.LockTimeout)
	}
	o.Cache = strings.ToLower(strings.TrimSpace(o.Cache))
	switch o.Cache {
	case "", "none":
		o.Cache = "none"
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid ORG_HIERARCHY_CACHE=%q (expected none|memory|redis)", o.Cache)
	}
	return nil
}

type Configuration struct {
	Database      DatabaseOptions
	Prometheus    PrometheusOptions
	Redis         RedisOptions
	OrgHierarchy  OrgHierarchyOptions
	OpenTelemetry OpenTelemetryOptions
	RateLimit     RateLimitOptions
	CORS          CORSOptions

	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:""`
	// SDK will look for this header in the request, if it's not present, it will generate a random uuidv4
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`

	// RLS enforcement mode (disabled/enforce).
	RLSEnforce string `env:"RLS_ENFORCE" envDefault:"disabled"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	return logging.ParseLevel(c.LogLevel)
}

func Use() *Configuration {
	return singleton()
}

// Load builds a Configuration from the given env files and the process environment.
func Load(envFiles []string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		c.Unload()
		return nil, err
	}
	return c, nil
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 && len(envFiles) > 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.OrgHierarchy.Validate(); err != nil {
		return fmt.Errorf("org hierarchy configuration error: %w", err)
	}
	if err := c.validateRLS(); err != nil {
		return err
	}
	switch c.RateLimit.Storage {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid RATE_LIMIT_STORAGE=%q (expected memory|redis)", c.RateLimit.Storage)
	}

	if c.LogPath != "" {
		f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
		if err != nil {
			return err
		}
		c.logFile = f
		c.logger = logger
	} else {
		c.logger = logging.ConsoleLogger(c.LogrusLogLevel())
	}

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

func (c *Configuration) validateRLS() error {
	mode := strings.ToLower(strings.TrimSpace(c.RLSEnforce))
	if mode == "" {
		mode = "disabled"
	}
	switch mode {
	case "disabled", "enforce":
	default:
		return fmt.Errorf("invalid RLS_ENFORCE=%q (expected disabled|enforce)", c.RLSEnforce)
	}

	if mode == "enforce" && strings.EqualFold(strings.TrimSpace(c.Database.User), "postgres") {
		return errors.New("RLS_ENFORCE=enforce requires a non-superuser DB_USER (postgres will bypass RLS)")
	}

	c.RLSEnforce = mode
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
		c.logFile = nil
	}
}
