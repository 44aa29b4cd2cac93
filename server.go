package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"i4.energy/across/espgw/blynk"
	"i4.energy/across/espgw/modem"
	"i4.energy/across/espgw/sntp"
)

type loggerKey struct{}

// Server handles incoming HTTP requests for interacting with the
// configured gateway
type Server struct {
	Logger  *slog.Logger
	Gateway *Gateway
	// Token, when set, must be presented as "Authorization: Bearer <token>"
	Token string
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	w.Header().Set("X-Request-Id", requestID)
	logger := s.Logger.With("request_id", requestID)
	r = r.WithContext(context.WithValue(r.Context(), loggerKey{}, logger))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /wifi", s.authorized(s.handleWifi))
	mux.HandleFunc("GET /blynk/{pin}", s.authorized(s.handleBlynkRead))
	mux.HandleFunc("PUT /blynk/{pin}", s.authorized(s.handleBlynkWrite))
	mux.HandleFunc("GET /blynk", s.authorized(s.handleServers))
	mux.HandleFunc("GET /time", s.authorized(s.handleTime))
	mux.ServeHTTP(w, r)
}

func (s *Server) logger(r *http.Request) *slog.Logger {
	if l, ok := r.Context().Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return s.Logger
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Token != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
				s.sendError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps device errors to the HTTP status returned to the caller.
func statusFor(err error) int {
	switch {
	case errors.Is(err, blynk.ErrInvalidField):
		return http.StatusBadRequest
	case errors.Is(err, blynk.ErrWifiNotConnected), errors.Is(err, sntp.ErrWifiNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, blynk.ErrAllServersFailed):
		return http.StatusBadGateway
	case errors.Is(err, sntp.ErrNotSynchronized), errors.Is(err, sntp.ErrNoResponse), errors.Is(err, modem.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleWifi(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, s.Gateway.Wifi(r.Context()))
}

func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	type ServersResponse struct {
		Servers []string `json:"servers"`
	}
	s.sendJSON(w, ServersResponse{Servers: s.Gateway.Servers()})
}

// handleBlynkRead returns the value of a datastream pin
func (s *Server) handleBlynkRead(w http.ResponseWriter, r *http.Request) {
	pin := r.PathValue("pin")
	token := r.URL.Query().Get("token")
	if token == "" {
		s.sendError(w, "'token' query parameter is required", http.StatusBadRequest)
		return
	}

	value, err := s.Gateway.ReadPin(r.Context(), token, pin)
	if err != nil {
		s.logger(r).Error("Failed to read pin", "error", err, "pin", pin)
		s.sendError(w, err.Error(), statusFor(err))
		return
	}

	type PinResponse struct {
		Pin   string `json:"pin"`
		Value string `json:"value"`
	}
	s.logger(r).Info("Pin read", "pin", pin)
	s.sendJSON(w, PinResponse{Pin: pin, Value: value})
}

// handleBlynkWrite sets the value of a datastream pin
func (s *Server) handleBlynkWrite(w http.ResponseWriter, r *http.Request) {
	pin := r.PathValue("pin")
	token := r.URL.Query().Get("token")
	if token == "" {
		s.sendError(w, "'token' query parameter is required", http.StatusBadRequest)
		return
	}

	type WriteRequest struct {
		Value *string `json:"value"`
	}

	var req WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Value == nil {
		s.sendError(w, "'value' field is required", http.StatusBadRequest)
		return
	}

	if err := s.Gateway.WritePin(r.Context(), token, pin, *req.Value); err != nil {
		s.logger(r).Error("Failed to write pin", "error", err, "pin", pin)
		s.sendError(w, err.Error(), statusFor(err))
		return
	}

	s.logger(r).Info("Pin written", "pin", pin, "value_length", len(*req.Value))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	verify := r.URL.Query().Get("verify") == "1"

	info, err := s.Gateway.Time(r.Context(), verify)
	if err != nil {
		s.logger(r).Error("Failed to fetch time", "error", err)
		s.sendError(w, err.Error(), statusFor(err))
		return
	}
	s.sendJSON(w, info)
}
