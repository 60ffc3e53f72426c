package server

import (
	"net/http"
	"time"

	"github.com/orneryd/munindb/pkg/auth"
	"github.com/orneryd/munindb/pkg/query"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"nodes":    s.engine.NumNodes(),
		"edges":    s.engine.NumEdges(),
		"uptime":   time.Since(s.startTime).String(),
		"requests": s.requests.Load(),
		"active":   s.active.Load(),
	}
	if s.cacheStats != nil {
		status["block_cache"] = s.cacheStats()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.authn == nil {
		writeError(w, http.StatusNotFound, "authentication disabled")
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	token, err := s.authn.IssueToken(req.Password)
	if err == auth.ErrInvalidPassword {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleKHop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Node string `json:"node"`
		K    int    `json:"k"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.K < 0 {
		writeError(w, http.StatusBadRequest, "k must be non-negative")
		return
	}
	s.serveCount(w, r, func() (uint64, error) {
		return s.engine.KHop(r.Context(), req.Node, req.K)
	})
}

func (s *Server) handleCommonNeighbors(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nodes []string `json:"nodes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Nodes) == 0 {
		writeError(w, http.StatusBadRequest, "nodes must not be empty")
		return
	}
	s.serveCount(w, r, func() (uint64, error) {
		return s.engine.CommonNeighbors(r.Context(), req.Nodes)
	})
}

func (s *Server) handleSubgraph(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NodeLabels []string `json:"node_labels"`
		Edges      []struct {
			From  int    `json:"from"`
			To    int    `json:"to"`
			Label string `json:"label"`
		} `json:"edges"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	pattern := &query.Pattern{NodeLabels: req.NodeLabels}
	for _, e := range req.Edges {
		pattern.Edges = append(pattern.Edges, query.PatternEdge{From: e.From, To: e.To, Label: e.Label})
	}
	if err := pattern.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.serveCount(w, r, func() (uint64, error) {
		return s.engine.Subgraph(r.Context(), pattern)
	})
}

func (s *Server) handleConnectedComponents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.serveCount(w, r, func() (uint64, error) {
		return s.engine.ConnectedComponents(r.Context())
	})
}

func (s *Server) handleReachable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Src string `json:"src"`
		Dst string `json:"dst"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.serveCount(w, r, func() (uint64, error) {
		return s.engine.Reachable(r.Context(), req.Src, req.Dst)
	})
}

// serveCount runs one query and writes the uniform count or error
// payload. Metrics are recorded by the metrics middleware.
func (s *Server) serveCount(w http.ResponseWriter, r *http.Request, run func() (uint64, error)) {
	count, err := run()
	if err != nil {
		if r.Context().Err() != nil {
			writeError(w, http.StatusRequestTimeout, "query canceled")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeCount(w, count)
}
