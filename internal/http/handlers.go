package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/CoolE88/observatory/internal/auth"
	"github.com/CoolE88/observatory/internal/domain"
	"github.com/CoolE88/observatory/internal/service"
	"github.com/CoolE88/observatory/internal/timefilter"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *HTTPServer) withUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.User(r); err != nil {
			w.Header().Set("WWW-Authenticate", auth.Challenge)
			s.writeErr(w, r, err)
			return
		}
		next(w, r)
	}
}

func (s *HTTPServer) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.Admin(r); err != nil {
			w.Header().Set("WWW-Authenticate", auth.Challenge)
			s.writeErr(w, r, err)
			return
		}
		next(w, r)
	}
}

// withEmitter кладёт проверенного эмиттера в контекст запроса
func (s *HTTPServer) withEmitter(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		emitter, err := s.auth.Emitter(r, mux.Vars(r)["emitter"])
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		next(w, r.WithContext(auth.WithEmitter(r.Context(), emitter)))
	}
}

func (s *HTTPServer) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CheckDBConnection(r.Context()); err != nil {
		s.logger.Error("Health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *HTTPServer) ingest(w http.ResponseWriter, r *http.Request) {
	var req service.IngestRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}

	if err := s.service.Ingest(r.Context(), auth.EmitterFromContext(r.Context()), req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeOK(w)
}

func (s *HTTPServer) ingestQuery(w http.ResponseWriter, r *http.Request) {
	emitter, bucket := auth.EmitterFromContext(r.Context()), mux.Vars(r)["bucket"]
	if err := s.service.IngestQuery(r.Context(), emitter, bucket, r.URL.Query()); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeOK(w)
}

type gpsUpload struct {
	Locations []domain.GPSLocation `json:"locations"`
}

func (s *HTTPServer) ingestGPS(w http.ResponseWriter, r *http.Request) {
	var upload gpsUpload
	if err := decodeBody(w, r, &upload); err != nil {
		s.writeErr(w, r, err)
		return
	}

	emitter := auth.EmitterFromContext(r.Context())
	if _, err := s.service.IngestGPS(r.Context(), emitter, mux.Vars(r)["bucket"], upload.Locations); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeOK(w)
}

func (s *HTTPServer) getData(w http.ResponseWriter, r *http.Request) {
	points, err := s.service.Query(r.Context(), queryParams(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *HTTPServer) deleteData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	affected, err := s.service.Delete(r.Context(), timefilter.FromQuery(q), q.Get("bucket"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"affected_rows": affected})
}

func (s *HTTPServer) getWeight(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Weight(r.Context(), timefilter.FromQuery(r.URL.Query()))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) getCoordinates(w http.ResponseWriter, r *http.Request) {
	p := queryParams(r)
	p.Bucket = mux.Vars(r)["bucket"]

	coords, err := s.service.Coordinates(r.Context(), p)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, coords)
}

func (s *HTTPServer) getBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.service.Buckets(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (s *HTTPServer) getSeries(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	p := queryParams(r)
	p.Bucket = vars["bucket"]

	values, err := s.service.Series(r.Context(), vars["field"], p)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": values})
}

func (s *HTTPServer) getActivity(w http.ResponseWriter, r *http.Request) {
	stamps, err := s.service.Activity(r.Context(), queryParams(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data_points": stamps})
}

func (s *HTTPServer) listEmitters(w http.ResponseWriter, r *http.Request) {
	emitters, err := s.emitters.List(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emitters)
}

type addEmitterRequest struct {
	Description string `json:"description"`
	// TTL в формате time.ParseDuration, например "720h"; пусто - бессрочно
	TTL string `json:"ttl,omitempty"`
}

func (s *HTTPServer) addEmitter(w http.ResponseWriter, r *http.Request) {
	var req addEmitterRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}

	var ttl time.Duration
	if req.TTL != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil || parsed < 0 {
			s.writeErr(w, r, fmt.Errorf("%w: invalid ttl %q", domain.ErrBadRequest, req.TTL))
			return
		}
		ttl = parsed
	}

	emitter, err := s.emitters.Add(r.Context(), req.Description, ttl)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emitter)
}

func (s *HTTPServer) deleteEmitter(w http.ResponseWriter, r *http.Request) {
	description := r.URL.Query().Get("description")
	if description == "" {
		s.writeErr(w, r, fmt.Errorf("%w: description is required", domain.ErrBadRequest))
		return
	}

	affected, err := s.emitters.Delete(r.Context(), description)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"affected_rows": affected})
}

func queryParams(r *http.Request) service.QueryParams {
	q := r.URL.Query()
	return service.QueryParams{
		Range:  timefilter.FromQuery(q),
		Bucket: q.Get("bucket"),
		Limit:  q.Get("limit"),
		Sample: q.Get("sample"),
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrBadRequest, err)
	}
	return nil
}

// statusFor переводит доменную ошибку в HTTP-статус
func statusFor(err error) int {
	switch {
	case domain.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()

	switch {
	case status == http.StatusInternalServerError:
		s.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", routePath(r)),
			zap.Error(err))
		msg = "internal server error"
	case status == http.StatusUnauthorized:
		msg = "unauthorized"
	default:
		s.logger.Warn("Request rejected",
			zap.String("method", r.Method),
			zap.String("path", routePath(r)),
			zap.Int("status", status),
			zap.Error(err))
	}

	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(msg)})
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
