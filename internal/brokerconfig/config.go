// Package brokerconfig stores the broker connection settings operators can
// change at runtime: host, port and the topic filter the server subscribes
// to. The connection manager reads them on every connect attempt.
package brokerconfig

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Errors returned by the store.
var (
	// ErrInvalidConfig is returned when an update fails validation.
	ErrInvalidConfig = errors.New("brokerconfig: invalid")
)

// Config is the singleton broker settings row.
type Config struct {
	Host          string    `json:"host"`
	Port          int       `json:"port"`
	TopicWildcard string    `json:"topic_wildcard"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Namespace returns the first level of the topic wildcard. Device command
// topics are built under it: "vigilant/data/#" -> "vigilant".
func (c Config) Namespace() string {
	ns, _, _ := strings.Cut(c.TopicWildcard, "/")
	return ns
}

// Validate checks host, port and the topic filter.
func (c Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, "host is required")
	} else if strings.ContainsAny(c.Host, " /") {
		errs = append(errs, "host must not contain spaces or '/'")
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if err := validateTopicFilter(c.TopicWildcard); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// validateTopicFilter applies the MQTT 3.1.1 filter rules: '#' only as the
// whole last level, '+' only as a whole level. The first level must be a
// literal so a command namespace can be derived from it.
func validateTopicFilter(filter string) error {
	if filter == "" {
		return errors.New("topic wildcard is required")
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return errors.New("'#' must be the last level on its own")
		}
		if strings.Contains(level, "+") && level != "+" {
			return errors.New("'+' must occupy a whole level")
		}
	}

	switch levels[0] {
	case "", "+", "#":
		return errors.New("first topic level must be a literal namespace")
	}
	return nil
}
