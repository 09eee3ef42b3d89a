package api

import "net/http"

// handleRealtime upgrades the request into a realtime session. Sessions
// receive every ReceberAtualizacaoEquipamento event broadcast while they are
// connected. Browser handshakes must come from an allowed origin.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && !s.isAllowedOrigin(origin) {
		s.logger.Warn("realtime handshake from disallowed origin",
			"origin", origin,
			"subject", subjectFromContext(r.Context()),
		)
		writeForbidden(w, "origin not allowed")
		return
	}
	s.hub.ServeWS(w, r, subjectFromContext(r.Context()))
}
