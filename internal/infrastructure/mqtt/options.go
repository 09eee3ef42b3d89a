package mqtt

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/vigilant-core/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds a single connect attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds waiting for a publish or subscribe acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 30 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Options describes one connection attempt.
//
// Host and Port come from the persisted broker row and ClientID is unique per
// attempt, so Options is rebuilt every time the caller dials.
type Options struct {
	Host           string
	Port           int
	ClientID       string
	Username       string
	Password       string
	TLS            bool
	KeepAlive      time.Duration
	ConnectTimeout time.Duration

	// OnConnectionLost is invoked once when an established connection drops.
	OnConnectionLost func(err error)

	// Logger receives handler errors and recovered panics. Optional.
	Logger Logger
}

// OptionsFromConfig merges static settings from config.yaml with the
// dynamic endpoint and client id of this attempt.
func OptionsFromConfig(cfg config.MQTTConfig, host string, port int, clientID string) Options {
	return Options{
		Host:           host,
		Port:           port,
		ClientID:       clientID,
		Username:       cfg.Auth.Username,
		Password:       cfg.Auth.Password,
		TLS:            cfg.TLS,
		KeepAlive:      cfg.GetKeepAlive(),
		ConnectTimeout: cfg.GetConnectTimeout(),
	}
}

// BrokerURL returns the paho broker URL for these options.
func (o Options) BrokerURL() string {
	scheme := "tcp"
	if o.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(o.Host, strconv.Itoa(o.Port)))
}

func (o Options) connectTimeout() time.Duration {
	if o.ConnectTimeout <= 0 {
		return defaultConnectTimeout
	}
	return o.ConnectTimeout
}

// buildClientOptions creates paho MQTT options for a single attempt.
//
// paho's own reconnect machinery is disabled: the caller owns the retry
// loop so that every attempt re-reads the broker row and gets a fresh
// client id.
func buildClientOptions(o Options) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(o.BrokerURL())
	opts.SetClientID(o.ClientID)

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetOrderMatters(true)
	opts.SetConnectTimeout(o.connectTimeout())

	keepAlive := o.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	if o.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}
