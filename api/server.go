// Package api exposes the registration workflow, vote casting and
// results over HTTP. Handlers are thin: decode, call the core, map the
// error kind to a status code.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/TradeStacksInc/UNIvote2/models"
	"github.com/TradeStacksInc/UNIvote2/service"
	"github.com/TradeStacksInc/UNIvote2/storage"
)

type Server struct {
	workflow *service.RegistrationWorkflow
	caster   *service.VoteCaster
	results  *service.ResultsAggregator
	resolver *service.ElectionStatusResolver
	store    storage.Store
	metrics  *service.MetricsCollector
	logger   *zap.Logger
}

func NewServer(
	workflow *service.RegistrationWorkflow,
	caster *service.VoteCaster,
	results *service.ResultsAggregator,
	resolver *service.ElectionStatusResolver,
	store storage.Store,
	metrics *service.MetricsCollector,
	logger *zap.Logger,
) *Server {
	return &Server{
		workflow: workflow,
		caster:   caster,
		results:  results,
		resolver: resolver,
		store:    store,
		metrics:  metrics,
		logger:   logger,
	}
}

// Routes registers all handlers on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/register/begin", s.handleRegisterBegin)
	mux.HandleFunc("/api/register/info", s.handleRegisterInfo)
	mux.HandleFunc("/api/register/resend", s.handleRegisterResend)
	mux.HandleFunc("/api/register/verify", s.handleRegisterVerify)
	mux.HandleFunc("/api/register/back", s.handleRegisterBack)
	mux.HandleFunc("/api/register/complete", s.handleRegisterComplete)
	mux.HandleFunc("/api/vote", s.handleCastVote)
	mux.HandleFunc("/api/elections", s.handleListElections)
	mux.HandleFunc("/api/results", s.handleResults)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	return mux
}

// ListenAndServe runs the server until the context is canceled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	s.logger.Info("API listening", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Request/response bodies

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

type registerInfoRequest struct {
	SessionID string                  `json:"session_id"`
	Form      models.RegistrationForm `json:"form"`
}

type verifyCodeRequest struct {
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
}

type completeRequest struct {
	SessionID     string `json:"session_id"`
	WalletAddress string `json:"wallet_address"`
}

type castVoteRequest struct {
	VoterID     string `json:"voter_id"`
	CandidateID string `json:"candidate_id"`
	ElectionID  string `json:"election_id"`
}

type electionView struct {
	models.Election
	Status     models.ElectionStatus `json:"status"`
	Candidates []models.Candidate    `json:"candidates"`
}

type errorResponse struct {
	Kind   service.Kind      `json:"kind"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Handlers

func (s *Server) handleRegisterBegin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusCreated, s.workflow.Begin())
}

func (s *Server) handleRegisterInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req registerInfoRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.workflow.SubmitInfo(r.Context(), req.SessionID, req.Form)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRegisterResend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req sessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.workflow.ResendCode(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req verifyCodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	view, err := s.workflow.SubmitCode(r.Context(), req.SessionID, req.Code)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRegisterBack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req sessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	view, err := s.workflow.Back(req.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRegisterComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req completeRequest
	if !s.decode(w, r, &req) {
		return
	}
	identity, err := s.workflow.Complete(r.Context(), req.SessionID, req.WalletAddress)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, identity)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req castVoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	receipt, err := s.caster.Cast(r.Context(), req.VoterID, req.CandidateID, req.ElectionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleListElections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	elections, err := s.store.ListElections(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	views := make([]electionView, 0, len(elections))
	for _, election := range elections {
		candidates, err := s.store.ListCandidates(r.Context(), election.ID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		views = append(views, electionView{
			Election:   election,
			Status:     s.resolver.Status(&election),
			Candidates: candidates,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	electionID := r.URL.Query().Get("election_id")
	if electionID == "" {
		http.Error(w, "election_id is required", http.StatusBadRequest)
		return
	}
	results, err := s.results.Tally(r.Context(), electionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.metrics.GetMetrics())
}

// Helpers

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encoding failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Kind: service.KindOf(err), Error: err.Error()}

	var coreErr *service.Error
	if errors.As(err, &coreErr) {
		resp.Fields = coreErr.Fields
		resp.Error = coreErr.Reason
	}

	status := http.StatusBadGateway
	switch resp.Kind {
	case service.KindValidation:
		status = http.StatusBadRequest
	case service.KindConflict:
		status = http.StatusConflict
	case service.KindIneligibility:
		status = http.StatusForbidden
	case service.KindWalletDeclined:
		status = http.StatusConflict
	case service.KindExternalDependency:
		status = http.StatusBadGateway
		s.logger.Error("dependency failure", zap.Error(err))
	}

	s.writeJSON(w, status, resp)
}
