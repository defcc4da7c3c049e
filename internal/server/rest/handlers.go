// Package rest implements the HTTP API of the service: session brokering,
// peer address and certificate lookups, signal telemetry, WebSocket ticket
// issuance, DID artifacts, and the operator dashboard.
//
// Every JSON endpoint answers with the same envelope: a Success flag, plus
// either the endpoint's payload fields or an Errors object mapping each
// failed aspect of the request to an error code.
package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flyvercity/c2ng/internal/did"
	"github.com/flyvercity/c2ng/internal/server/storage"
	"github.com/flyvercity/c2ng/internal/session"
)

// homepage is served on the root path so that a probe of the bare host
// shows something identifiable.
const homepage = "<html><body><h1>C2NG</h1></body></html>"

// Server holds the dependencies needed by the REST handlers.
type Server struct {
	sessions SessionManager
	store    SessionReader
	signals  SignalWriter
	stats    StatsProvider
	tickets  TicketIssuer
	did      DIDProvider
	logger   *slog.Logger
}

// NewServer creates a Server over the service backends.
func NewServer(
	sessions SessionManager,
	store SessionReader,
	signals SignalWriter,
	stats StatsProvider,
	tickets TicketIssuer,
	didp DIDProvider,
	logger *slog.Logger,
) *Server {
	return &Server{
		sessions: sessions,
		store:    store,
		signals:  signals,
		stats:    stats,
		tickets:  tickets,
		did:      didp,
		logger:   logger,
	}
}

type successResponse struct {
	Success bool `json:"Success"`
}

type sessionResponse struct {
	Success             bool   `json:"Success"`
	IP                  string `json:"IP"`
	GatewayIP           string `json:"GatewayIP"`
	KID                 string `json:"KID"`
	EncryptedPrivateKey string `json:"EncryptedPrivateKey"`
}

type certificateResponse struct {
	Success     bool   `json:"Success"`
	KID         string `json:"KID"`
	Certificate string `json:"Certificate"`
}

type addressResponse struct {
	Success bool   `json:"Success"`
	Address string `json:"Address"`
}

type signalStatsResponse struct {
	Success bool      `json:"Success"`
	Stats   []float64 `json:"Stats"`
}

type ticketResponse struct {
	Success bool   `json:"Success"`
	Ticket  string `json:"Ticket"`
}

type jwtResponse struct {
	Success bool   `json:"Success"`
	JWT     string `json:"JWT"`
}

type didConfigResponse struct {
	Success bool                `json:"Success"`
	Config  *did.VerifierConfig `json:"Config"`
}

// decodeRequest unmarshals the request body into dst. A body that is not
// valid JSON draws the 400 envelope, and the caller stops.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.logger.Warn("rest: malformed request body", slog.Any("error", err))
		fail(w, map[string][]string{"Request": {"malformed JSON body"}})
		return false
	}
	return true
}

// handleHomepage responds to GET /.
func (s *Server) handleHomepage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(homepage))
}

// handleHealthz responds to GET /healthz.
//
// This endpoint does not require authentication and returns HTTP 200 with a
// simple JSON body so load balancers and orchestrators can verify liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSessionOpen responds to POST /session.
//
// The body is an AerialConnectionSessionRequest naming the UAS and the
// segment to connect. On success the response carries the allocated IP, the
// gateway, and the freshly issued client credentials; the encrypted private
// key appears only here and is never stored.
func (s *Server) handleSessionOpen(w http.ResponseWriter, r *http.Request) {
	var request AerialConnectionSessionRequest
	if !s.decodeRequest(w, r, &request) {
		return
	}

	if errs := request.Validate(); errs != nil {
		s.logger.Warn("rest: invalid session request", slog.Any("errors", errs))
		fail(w, errs)
		return
	}

	conn, err := s.sessions.Open(r.Context(), session.Request{
		UasID:   request.UasID,
		Segment: storage.Segment(request.Segment),
		IMSI:    request.IMSI,
	})
	if err != nil {
		var serr *session.Error
		if errors.As(err, &serr) {
			fail(w, serr.Errors)
			return
		}

		s.logger.Error("rest: session open failed",
			slog.String("uasid", request.UasID),
			slog.Any("error", err),
		)
		writeInternalError(w, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Success:             true,
		IP:                  conn.IP,
		GatewayIP:           conn.GatewayIP,
		KID:                 conn.KID,
		EncryptedPrivateKey: conn.EncryptedPrivateKey,
	})
}

// handleSessionClose responds to DELETE /session/{uasid}.
func (s *Server) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	uasid := chi.URLParam(r, "uasid")

	if err := s.sessions.Close(r.Context(), uasid); err != nil {
		s.logger.Error("rest: session close failed",
			slog.String("uasid", uasid),
			slog.Any("error", err),
		)
		writeInternalError(w, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// loadEndpoint resolves the {uasid}/{segment} path pair to a stored session
// endpoint. It writes the failure envelope and returns false when the pair
// does not resolve: unknown session, invalid segment, or a segment that has
// not connected yet.
func (s *Server) loadEndpoint(w http.ResponseWriter, r *http.Request) (*storage.SessionEndpoint, bool) {
	uasid := chi.URLParam(r, "uasid")
	segment := chi.URLParam(r, "segment")

	if uasid == "" {
		fail(w, map[string]string{"UasID": "not_found"})
		return nil, false
	}

	sess, err := s.store.GetSession(r.Context(), uasid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Info("rest: session not found", slog.String("uasid", uasid))
			fail(w, map[string]string{"Session": "session_not_found"})
			return nil, false
		}

		s.logger.Error("rest: session lookup failed",
			slog.String("uasid", uasid),
			slog.Any("error", err),
		)
		writeInternalError(w, http.StatusInternalServerError)
		return nil, false
	}

	seg := storage.Segment(segment)
	if !seg.Valid() {
		s.logger.Warn("rest: invalid segment",
			slog.String("uasid", uasid),
			slog.String("segment", segment),
		)
		fail(w, map[string]string{"Segment": "invalid"})
		return nil, false
	}

	ep := sess.Endpoint(seg)
	if ep == nil {
		fail(w, map[string]string{"Session": "peer_not_connected"})
		return nil, false
	}

	return ep, true
}

// handleAddress responds to GET /address/{uasid}/{segment} with the named
// segment's session IP. A peer asks for the opposite segment to learn where
// to send traffic.
func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	ep, ok := s.loadEndpoint(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, addressResponse{Success: true, Address: ep.IP})
}

// handleCertificate responds to GET /certificate/{uasid}/{segment} with the
// named segment's current certificate and key identifier.
func (s *Server) handleCertificate(w http.ResponseWriter, r *http.Request) {
	ep, ok := s.loadEndpoint(w, r)
	if !ok {
		return
	}

	if ep.Certificate == "" {
		fail(w, map[string]string{"Session": "peer_not_connected"})
		return
	}

	writeJSON(w, http.StatusOK, certificateResponse{
		Success:     true,
		KID:         ep.KID,
		Certificate: ep.Certificate,
	})
}

// handleSignalReport responds to POST /signal/{uasid}.
//
// The body wraps one telemetry packet; structurally invalid packets draw
// per-field validation errors under dotted "Packet." keys.
func (s *Server) handleSignalReport(w http.ResponseWriter, r *http.Request) {
	uasid := chi.URLParam(r, "uasid")

	var request SignalStatsReportRequest
	if !s.decodeRequest(w, r, &request) {
		return
	}

	if errs := request.Validate(); errs != nil {
		s.logger.Warn("rest: invalid signal report",
			slog.String("uasid", uasid),
			slog.Any("errors", errs),
		)
		fail(w, errs)
		return
	}

	if err := s.signals.Write(r.Context(), uasid, request.Packet); err != nil {
		s.logger.Error("rest: signal write failed",
			slog.String("uasid", uasid),
			slog.Any("error", err),
		)
		writeInternalError(w, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// handleSignalStats responds to GET /signal/{uasid} with the recent signal
// aggregates, one value per recorded series.
func (s *Server) handleSignalStats(w http.ResponseWriter, r *http.Request) {
	uasid := chi.URLParam(r, "uasid")

	values, err := s.stats.SignalStats(r.Context(), uasid)
	if err != nil {
		s.logger.Error("rest: signal stats read failed",
			slog.String("uasid", uasid),
			slog.Any("error", err),
		)
		fail(w, map[string]string{"Database": "unable_to_read"})
		return
	}

	// Always return a JSON array, not null.
	if values == nil {
		values = []float64{}
	}

	writeJSON(w, http.StatusOK, signalStatsResponse{Success: true, Stats: values})
}

// handleNotificationsAuth responds to POST /notifications/auth/{uasid}/{segment}.
//
// It trades the caller's bearer identity for a short-lived WebSocket ticket
// bound to the (UasID, segment) pair. Both path checks run before issuing,
// so a request can come back with more than one error.
func (s *Server) handleNotificationsAuth(w http.ResponseWriter, r *http.Request) {
	uasid := chi.URLParam(r, "uasid")
	segment := chi.URLParam(r, "segment")

	errs := map[string]string{}

	if uasid == "" {
		errs["UasID"] = "not_found"
	}

	switch {
	case segment == "":
		errs["Segment"] = "not_found"
	case !storage.Segment(segment).Valid():
		errs["Segment"] = "bad_segment"
	}

	if len(errs) > 0 {
		fail(w, errs)
		return
	}

	ticket, err := s.tickets.Issue(uasid, storage.Segment(segment))
	if err != nil {
		s.logger.Error("rest: ticket issue failed",
			slog.String("uasid", uasid),
			slog.Any("error", err),
		)
		writeInternalError(w, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ticketResponse{Success: true, Ticket: ticket})
}

// handleDIDJWT responds to GET /did/jwt/{uasid} with the pre-provisioned
// verifiable credential for the UAS.
func (s *Server) handleDIDJWT(w http.ResponseWriter, r *http.Request) {
	uasid := chi.URLParam(r, "uasid")

	jwt, err := s.did.IssueJWT(uasid)
	if err != nil {
		s.logger.Error("rest: credential issue failed",
			slog.String("uasid", uasid),
			slog.Any("error", err),
		)
		fail(w, map[string]string{"UasID": "not_found"})
		return
	}

	writeJSON(w, http.StatusOK, jwtResponse{Success: true, JWT: jwt})
}

// handleDIDConfig responds to GET /did/config/{uasid} with the credential
// verifier configuration for the UAS.
func (s *Server) handleDIDConfig(w http.ResponseWriter, r *http.Request) {
	uasid := chi.URLParam(r, "uasid")

	cfg, err := s.did.GenerateConfig(uasid)
	if err != nil {
		s.logger.Error("rest: verifier config failed",
			slog.String("uasid", uasid),
			slog.Any("error", err),
		)
		fail(w, map[string]string{"UasID": "not_found"})
		return
	}

	writeJSON(w, http.StatusOK, didConfigResponse{Success: true, Config: cfg})
}
