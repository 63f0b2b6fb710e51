package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wishport/native/custody"
	"wishport/native/portion"
	"wishport/native/sigauth"
	"wishport/native/wish"
	"wishport/native/wishport"
)

// Server exposes the node over an HTTP JSON API.
type Server struct {
	node   Node
	log    *slog.Logger
	router http.Handler
}

// NewServer constructs a configured router around the node.
func NewServer(node Node, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{node: node, log: log}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.requestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/wishport", func(r chi.Router) {
		r.Post("/list", s.handleList)
		r.Post("/unlist", s.handleUnlist)
		r.Post("/fulfill", s.handleFulfill)
		r.Post("/dispute", s.handleDispute)
		r.Post("/claim", s.handleClaim)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/signer", s.handleSetAuthedSigner)
			r.Post("/claim-allowed", s.handleSetClaimAllowed)
			r.Post("/asset-config", s.handleSetAssetConfig)
			r.Post("/asset-configs", s.handleSetAssetConfigs)
			r.Post("/default-asset-config", s.handleSetDefaultAssetConfig)
			r.Post("/transferable", s.handleSetTransferable)
			r.Post("/completed", s.handleSetCompleted)
		})

		r.Get("/records/{id}", s.handleGetRecord)
		r.Get("/tokens/{id}", s.handleGetToken)
		r.Get("/tokens/{id}/owner", s.handleGetTokenOwner)
		r.Get("/tokens/{id}/uri", s.handleGetTokenURI)
		r.Get("/owners/{address}/tokens", s.handleTokensOfOwner)
		r.Get("/claimable/{address}/{asset}", s.handleClaimableBalance)
		r.Get("/settings", s.handleGetSettings)
		r.Get("/asset-configs/{asset}", s.handleGetAssetConfig)
		r.Get("/events", s.handleGetEvents)
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler tree.
func (s *Server) Handler() http.Handler { return s.router }

type ctxKey string

const requestIDKey ctxKey = "request-id"

// requestID tags every request with a uuid for log correlation.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) requestLog(r *http.Request) *slog.Logger {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return s.log.With("request_id", id)
	}
	return s.log
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.requestLog(r).Error("request failed", "err", err)
	} else {
		s.requestLog(r).Info("request rejected", "status", status, "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// statusFor maps engine sentinels onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, portion.ErrInvalidPercentile),
		errors.Is(err, wishport.ErrInvalidAddress),
		errors.Is(err, wishport.ErrInconsistentArrays),
		errors.Is(err, wish.ErrInvalidReceiver),
		errors.Is(err, wish.ErrInvalidAddress),
		errors.Is(err, custody.ErrInsufficientValue),
		errors.Is(err, custody.ErrInsufficientBalance):
		return http.StatusBadRequest
	case errors.Is(err, sigauth.ErrExpiredSignature),
		errors.Is(err, sigauth.ErrInvalidSignature),
		errors.Is(err, sigauth.ErrInvalidSigner):
		return http.StatusUnauthorized
	case errors.Is(err, wishport.ErrInvalidOwner),
		errors.Is(err, wishport.ErrUnauthorizedAccess),
		errors.Is(err, wishport.ErrUnauthorizedAccount),
		errors.Is(err, wishport.ErrClaimDisabled),
		errors.Is(err, wish.ErrUnauthorized),
		errors.Is(err, wish.ErrFunctionDisabled):
		return http.StatusForbidden
	case errors.Is(err, wishport.ErrRecordNotFound),
		errors.Is(err, wish.ErrNonexistentToken):
		return http.StatusNotFound
	case errors.Is(err, wishport.ErrNonceAlreadyUsed),
		errors.Is(err, wish.ErrAlreadyMinted),
		errors.Is(err, wish.ErrAlreadyCompleted),
		errors.Is(err, wish.ErrSetTransferable),
		errors.Is(err, wish.ErrSetCompleted),
		errors.Is(err, wishport.ErrAssetNotActivated):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
