package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/nerrad567/vigilant-core/internal/audit"
	"github.com/nerrad567/vigilant-core/internal/auth"
	"github.com/nerrad567/vigilant-core/internal/brokerconfig"
)

func TestGetBrokerConfig_SeedsDefaults(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, auth.RoleCollaborator, http.MethodGet, "/api/v1/broker/config", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var cfg brokerconfig.Config
	decodeBody(t, rec, &cfg)
	if cfg.Host != "broker.emqx.io" || cfg.Port != 1883 || cfg.TopicWildcard != "vigilant/data/#" {
		t.Errorf("config = %+v, want built-in seed", cfg)
	}
}

func TestUpdateBrokerConfig(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"host": "mqtt.planta.local", "port": 8883, "topic_wildcard": "fabrica/data/#"}

	if rec := env.do(t, auth.RoleCollaborator, http.MethodPut, "/api/v1/broker/config", body); rec.Code != http.StatusForbidden {
		t.Fatalf("colaborador PUT status = %d, want 403", rec.Code)
	}

	rec := env.do(t, auth.RoleAdmin, http.MethodPut, "/api/v1/broker/config", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin PUT status = %d, body = %s", rec.Code, rec.Body.String())
	}

	stored, err := env.store.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Host != "mqtt.planta.local" || stored.Port != 8883 || stored.Namespace() != "fabrica" {
		t.Errorf("stored = %+v", stored)
	}
	if env.broker.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", env.broker.reconnects)
	}

	res, err := env.audit.List(context.Background(), audit.Filter{Action: audit.ActionConfigure})
	if err != nil {
		t.Fatalf("audit List() error = %v", err)
	}
	if res.Total != 1 || res.Entries[0].Subject != "tester" {
		t.Errorf("audit = %+v, want one configure entry by tester", res.Entries)
	}
}

func TestUpdateBrokerConfig_Rejects(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		body     any
		wantCode int
	}{
		{"malformed", "{", http.StatusBadRequest},
		{"unknown field", map[string]any{"host": "h", "port": 1883, "topic_wildcard": "a/#", "qos": 2}, http.StatusBadRequest},
		{"empty host", map[string]any{"host": "", "port": 1883, "topic_wildcard": "a/#"}, http.StatusUnprocessableEntity},
		{"port out of range", map[string]any{"host": "h", "port": 70000, "topic_wildcard": "a/#"}, http.StatusUnprocessableEntity},
		{"bad wildcard", map[string]any{"host": "h", "port": 1883, "topic_wildcard": "a/#/b"}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, auth.RoleAdmin, http.MethodPut, "/api/v1/broker/config", tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}

	if env.broker.reconnects != 0 {
		t.Errorf("reconnects = %d, want 0 after rejected updates", env.broker.reconnects)
	}
}

func TestBrokerStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, auth.RoleCollaborator, http.MethodGet, "/api/v1/broker/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var st map[string]any
	decodeBody(t, rec, &st)
	if st["connected"] != true || st["broker"] != "broker.emqx.io:1883" {
		t.Errorf("status body = %v", st)
	}
}
