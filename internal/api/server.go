package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/vigilant-core/internal/audit"
	"github.com/nerrad567/vigilant-core/internal/broker"
	"github.com/nerrad567/vigilant-core/internal/brokerconfig"
	"github.com/nerrad567/vigilant-core/internal/device"
	"github.com/nerrad567/vigilant-core/internal/infrastructure/config"
	"github.com/nerrad567/vigilant-core/internal/infrastructure/database"
	"github.com/nerrad567/vigilant-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/vigilant-core/internal/infrastructure/logging"
	"github.com/nerrad567/vigilant-core/internal/realtime"
	"github.com/nerrad567/vigilant-core/internal/risk"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// BrokerConfigStore reads and writes the singleton broker settings row.
type BrokerConfigStore interface {
	Get(ctx context.Context) (*brokerconfig.Config, error)
	Update(ctx context.Context, cfg brokerconfig.Config) (*brokerconfig.Config, error)
}

// Broker is the connection manager as seen by the API: it sends device
// commands, reports its status, and can be asked to reconnect after the
// configuration changes.
type Broker interface {
	broker.Publisher
	Status() broker.Status
	Reconnect()
}

// HistoryStore is the measurement history sink. *influxdb.Client satisfies it.
type HistoryStore interface {
	HealthCheck(ctx context.Context) error
	Status() influxdb.Status
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Registry     *device.Registry
	BrokerConfig BrokerConfigStore
	Broker       Broker
	Hub          *realtime.Hub

	// Optional.
	Audit    audit.Repository
	DB       *database.DB
	History  HistoryStore
	Rules    risk.Rules
	Location *time.Location
	Version  string
}

// Server is the HTTP API server.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	registry  *device.Registry
	brokerCfg BrokerConfigStore
	broker    Broker
	hub       *realtime.Hub
	auditRepo audit.Repository
	audit     *audit.Recorder
	db        *database.DB
	history   HistoryStore
	rules     risk.Rules
	location  *time.Location
	version   string
	startTime time.Time
	now       func() time.Time
	server    *http.Server
	listener  net.Listener
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.Registry == nil:
		return nil, errors.New("device registry is required")
	case deps.BrokerConfig == nil:
		return nil, errors.New("broker config store is required")
	case deps.Broker == nil:
		return nil, errors.New("broker is required")
	case deps.Hub == nil:
		return nil, errors.New("realtime hub is required")
	case deps.Security.JWT.Secret == "":
		return nil, errors.New("jwt secret is required")
	}

	rules := deps.Rules
	if rules == nil {
		rules = risk.DefaultRules
	}
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		registry:  deps.Registry,
		brokerCfg: deps.BrokerConfig,
		broker:    deps.Broker,
		hub:       deps.Hub,
		auditRepo: deps.Audit,
		audit:     audit.NewRecorder(deps.Audit, deps.Logger),
		db:        deps.DB,
		history:   deps.History,
		rules:     rules,
		location:  loc,
		version:   deps.Version,
		startTime: time.Now(),
		now:       time.Now,
	}, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background. A bind failure
// (port in use) is returned synchronously.
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", ln.Addr().String(), "cert", s.cfg.TLS.CertFile)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
