package web

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskdesk/internal/domain"
	"github.com/vadiminshakov/riskdesk/internal/services/approval"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type outcomeResponse struct {
	TradeID string               `json:"trade_id"`
	Symbol  string               `json:"symbol"`
	State   domain.ApprovalState `json:"state"`
	Error   string               `json:"error,omitempty"`
}

type bulkResponse struct {
	Outcomes  []outcomeResponse `json:"outcomes"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Error     string            `json:"error,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrAlreadyResolved), errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrDuplicateTrade):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTrade), errors.Is(err, domain.ErrInvalidSnapshot):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) approvalsAvailable(w http.ResponseWriter) bool {
	if s.Approvals == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "approval queue not available"})
		return false
	}
	return true
}

func parseFilterParam(r *http.Request) (domain.Filter, error) {
	f, err := domain.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		return "", errors.Wrap(domain.ErrInvalidTrade, err.Error())
	}
	return f, nil
}

func (s *Server) handleLatestReport(w http.ResponseWriter, _ *http.Request) {
	if s.Reports == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "report store not available"})
		return
	}
	rec, ok := s.Reports.Latest()
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "no risk report yet"})
		return
	}
	s.writeJSON(w, http.StatusOK, rec.Report)
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	if !s.approvalsAvailable(w) {
		return
	}
	filter, err := parseFilterParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	trades, err := s.Approvals.ListPending(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if trades == nil {
		trades = []domain.PendingTrade{}
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleSubmitTrade(w http.ResponseWriter, r *http.Request) {
	if !s.approvalsAvailable(w) {
		return
	}
	var trade domain.PendingTrade
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&trade); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json: " + err.Error()})
		return
	}
	created, err := s.Approvals.Submit(r.Context(), trade)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	if !s.approvalsAvailable(w) {
		return
	}
	trade, err := s.Approvals.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trade)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if !s.approvalsAvailable(w) {
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.Approvals.Approve(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.respondTrade(w, r, id)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	if !s.approvalsAvailable(w) {
		return
	}
	id := mux.Vars(r)["id"]
	reason, ok := s.readReason(w, r)
	if !ok {
		return
	}
	if err := s.Approvals.Reject(r.Context(), id, reason); err != nil {
		s.writeError(w, err)
		return
	}
	s.respondTrade(w, r, id)
}

func (s *Server) handleApproveAll(w http.ResponseWriter, r *http.Request) {
	if !s.approvalsAvailable(w) {
		return
	}
	filter, err := parseFilterParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	outcomes, err := s.Approvals.ApproveAll(r.Context(), filter)
	s.writeBulk(w, outcomes, err)
}

func (s *Server) handleRejectAll(w http.ResponseWriter, r *http.Request) {
	if !s.approvalsAvailable(w) {
		return
	}
	filter, err := parseFilterParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	reason, ok := s.readReason(w, r)
	if !ok {
		return
	}
	outcomes, err := s.Approvals.RejectAll(r.Context(), filter, reason)
	s.writeBulk(w, outcomes, err)
}

// readReason decodes an optional {"reason": ...} body. An empty body is allowed.
func (s *Server) readReason(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req rejectRequest
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json: " + err.Error()})
		return "", false
	}
	return req.Reason, true
}

func (s *Server) respondTrade(w http.ResponseWriter, r *http.Request, id string) {
	trade, err := s.Approvals.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trade)
}

func (s *Server) writeBulk(w http.ResponseWriter, outcomes []approval.Outcome, err error) {
	resp := bulkResponse{Outcomes: make([]outcomeResponse, 0, len(outcomes))}
	for _, o := range outcomes {
		item := outcomeResponse{TradeID: o.TradeID, Symbol: o.Symbol, State: o.State}
		if o.Err != nil {
			item.Error = o.Err.Error()
			resp.Failed++
		} else {
			resp.Succeeded++
		}
		resp.Outcomes = append(resp.Outcomes, item)
	}

	status := http.StatusOK
	if err != nil {
		// partial results stand; the batch itself was interrupted
		resp.Error = err.Error()
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}
