package http

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/CoolE88/observatory/internal/domain"
	"github.com/CoolE88/observatory/internal/metrics"
	"github.com/CoolE88/observatory/internal/service"
	"github.com/CoolE88/observatory/internal/timefilter"
	"github.com/CoolE88/observatory/pkg/utils"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type DataService interface {
	CheckDBConnection(ctx context.Context) error
	Query(ctx context.Context, p service.QueryParams) ([]domain.DataPoint, error)
	Delete(ctx context.Context, p timefilter.Params, bucket string) (int64, error)
	Buckets(ctx context.Context) ([]string, error)
	Series(ctx context.Context, field string, p service.QueryParams) ([]domain.FieldValue, error)
	Coordinates(ctx context.Context, p service.QueryParams) ([]domain.GPSCoordinate, error)
	Activity(ctx context.Context, p service.QueryParams) ([]domain.BucketStamp, error)
	Weight(ctx context.Context, p timefilter.Params) (*domain.WeightReport, error)
	Ingest(ctx context.Context, emitter string, req service.IngestRequest) error
	IngestQuery(ctx context.Context, emitter, bucket string, values url.Values) error
	IngestGPS(ctx context.Context, emitter, bucket string, locations []domain.GPSLocation) (int, error)
}

type EmitterService interface {
	Add(ctx context.Context, description string, ttl time.Duration) (*domain.Emitter, error)
	Delete(ctx context.Context, description string) (int64, error)
	List(ctx context.Context) ([]domain.Emitter, error)
}

type Authenticator interface {
	User(r *http.Request) error
	Admin(r *http.Request) error
	Emitter(r *http.Request, pathToken string) (*domain.Emitter, error)
}

// maxBodySize ограничивает тело запроса на запись
const maxBodySize = 10 << 20

const requestIDHeader = "X-Request-ID"

type HTTPServer struct {
	server   *http.Server
	service  DataService
	emitters EmitterService
	auth     Authenticator
	logger   *zap.Logger
}

func NewHTTPServer(addr string, service DataService, emitters EmitterService, auth Authenticator, logger *zap.Logger) *HTTPServer {
	router := mux.NewRouter()

	s := &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           gzhttp.GzipHandler(router),
			ReadHeaderTimeout: 10 * time.Second,
		},
		service:  service,
		emitters: emitters,
		auth:     auth,
		logger:   logger,
	}

	// Middleware регистрации
	router.Use(middleware.RealIP)
	router.Use(s.metricsMiddleware)
	router.Use(s.loggingMiddleware)
	router.Use(middleware.Recoverer)

	// Служебные маршруты
	router.HandleFunc("/health", s.healthCheck).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()

	// Запись от эмиттеров
	api.HandleFunc("/data", s.withEmitter(s.ingest)).Methods("POST")
	api.HandleFunc("/data/{emitter}/{bucket}", s.withEmitter(s.ingestQuery)).Methods("GET", "POST")
	api.HandleFunc("/gps/{emitter}/{bucket}", s.withEmitter(s.ingestGPS)).Methods("POST")

	// Чтение для пользователя
	api.HandleFunc("/data", s.withUser(s.getData)).Methods("GET")
	api.HandleFunc("/data", s.withUser(s.deleteData)).Methods("DELETE")
	api.HandleFunc("/weight", s.withUser(s.getWeight)).Methods("GET")
	api.HandleFunc("/gps/{bucket}", s.withUser(s.getCoordinates)).Methods("GET")
	api.HandleFunc("/buckets", s.withUser(s.getBuckets)).Methods("GET")
	api.HandleFunc("/series/{bucket}/{field}", s.withUser(s.getSeries)).Methods("GET")
	api.HandleFunc("/observatory", s.withUser(s.getActivity)).Methods("GET")

	// Реестр эмиттеров
	api.HandleFunc("/emitter", s.withAdmin(s.listEmitters)).Methods("GET")
	api.HandleFunc("/emitter", s.withAdmin(s.addEmitter)).Methods("POST")
	api.HandleFunc("/emitter", s.withAdmin(s.deleteEmitter)).Methods("DELETE")

	return s
}

func (s *HTTPServer) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler нужен тестам, чтобы гонять запросы без сети
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// responseWriter для отслеживания статус кода и размера
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// middleware для сбора метрик HTTP запросов с использованием шаблона пути
func (s *HTTPServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		method := r.Method
		status := strconv.Itoa(rw.statusCode)

		path := routePath(r)

		metrics.HTTPRequests.WithLabelValues(method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
		metrics.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(rw.size))
	})
}

// middleware для логирования HTTP запросов
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// чужой request id принимаем только в виде UUID
		requestID := r.Header.Get(requestIDHeader)
		if !utils.IsValidUUID(requestID) {
			requestID = utils.NewUUID().String()
		}
		w.Header().Set(requestIDHeader, requestID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.Info("HTTP request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", routePath(r)),
			zap.String("query", r.URL.RawQuery),
			zap.String("ip", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()),
			zap.Int("status", rw.statusCode),
			zap.Int("response_size", rw.size),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// routePath шаблон маршрута из mux, чтобы токены эмиттеров из пути
// не попадали ни в метки, ни в логи
func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
