package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/vigilant-core/internal/audit"
	"github.com/nerrad567/vigilant-core/internal/brokerconfig"
)

// brokerConfigRequest is the body of PUT /broker/config.
type brokerConfigRequest struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	TopicWildcard string `json:"topic_wildcard"`
}

// handleGetBrokerConfig returns the stored broker settings, seeding the
// defaults on first read.
func (s *Server) handleGetBrokerConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.brokerCfg.Get(r.Context())
	if err != nil {
		s.logger.Error("reading broker config", "error", err)
		writeInternalError(w, "failed to read broker config")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleUpdateBrokerConfig replaces the broker settings and asks the
// connection manager to reconnect with them.
func (s *Server) handleUpdateBrokerConfig(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req brokerConfigRequest
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ctx := r.Context()
	previous, err := s.brokerCfg.Get(ctx)
	if err != nil {
		s.logger.Error("reading broker config", "error", err)
		writeInternalError(w, "failed to read broker config")
		return
	}

	updated, err := s.brokerCfg.Update(ctx, brokerconfig.Config{
		Host:          req.Host,
		Port:          req.Port,
		TopicWildcard: req.TopicWildcard,
	})
	if err != nil {
		if errors.Is(err, brokerconfig.ErrInvalidConfig) {
			writeValidationError(w, err.Error())
			return
		}
		s.logger.Error("updating broker config", "error", err)
		writeInternalError(w, "failed to update broker config")
		return
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     audit.ActionConfigure,
		EntityType: audit.EntityBroker,
		Subject:    subjectFromContext(ctx),
		Details: map[string]any{
			"from": previous.Address() + " " + previous.TopicWildcard,
			"to":   updated.Address() + " " + updated.TopicWildcard,
		},
	})

	s.logger.Info("broker config updated",
		"broker", updated.Address(),
		"topic_wildcard", updated.TopicWildcard,
	)
	s.broker.Reconnect()

	writeJSON(w, http.StatusOK, updated)
}

// handleBrokerStatus reports the live connection state.
func (s *Server) handleBrokerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.broker.Status())
}
