package grpc

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/CoolE88/observatory/internal/domain"
	"github.com/CoolE88/observatory/internal/metrics"
	"github.com/CoolE88/observatory/internal/service"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors"
	grpcauth "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/selector"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// DataService описывает бизнес-логику для получения данных
type DataService interface {
	Query(ctx context.Context, p service.QueryParams) ([]domain.DataPoint, error)
	CheckDBConnection(ctx context.Context) error
}

// Authenticator проверяет значение заголовка authorization из metadata
type Authenticator interface {
	UserHeader(header string) error
}

// healthInterval период опроса хранилища для grpc.health.v1
const healthInterval = 15 * time.Second

// GRPCServer реализует gRPC сервер с метриками и логированием
type GRPCServer struct {
	server  *grpc.Server
	health  *health.Server
	service DataService
	logger  *zap.Logger

	healthCtx  context.Context
	stopHealth context.CancelFunc
}

func NewGRPCServer(service DataService, authenticator Authenticator, logger *zap.Logger) *GRPCServer {
	loggingInterceptor := logging.UnaryServerInterceptor(interceptorLogger(logger))
	metricsInterceptor := grpc_prometheus.UnaryServerInterceptor
	customMetricsInterceptor := unaryMetricsInterceptor()
	authInterceptor := selector.UnaryServerInterceptor(
		grpcauth.UnaryServerInterceptor(authFunc(authenticator)),
		selector.MatchFunc(requiresAuth),
	)

	chain := grpc.ChainUnaryInterceptor(
		loggingInterceptor,
		metricsInterceptor,
		customMetricsInterceptor,
		authInterceptor,
	)

	healthCtx, stopHealth := context.WithCancel(context.Background())

	s := &GRPCServer{
		server:     grpc.NewServer(chain),
		health:     health.NewServer(),
		service:    service,
		logger:     logger,
		healthCtx:  healthCtx,
		stopHealth: stopHealth,
	}

	RegisterQueryServer(s.server, s)
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)

	grpc_prometheus.Register(s.server)
	grpc_prometheus.EnableHandlingTimeHistogram()

	return s
}

func (s *GRPCServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.logger.Info("Starting gRPC server", zap.String("addr", addr))
	return s.Serve(lis)
}

// Serve обслуживает готовый listener; health-статус обновляется, пока сервер работает
func (s *GRPCServer) Serve(lis net.Listener) error {
	go s.watchHealth(s.healthCtx, healthInterval)

	return s.server.Serve(lis)
}

func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down gRPC server")
	s.stopHealth()
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return ctx.Err()
	}
}

// watchHealth переводит сервис в NOT_SERVING, пока хранилище не отвечает
func (s *GRPCServer) watchHealth(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.checkHealth(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *GRPCServer) checkHealth(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	serving := healthpb.HealthCheckResponse_SERVING
	if err := s.service.CheckDBConnection(checkCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("gRPC health check failed", zap.Error(err))
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.health.SetServingStatus("", serving)
	s.health.SetServingStatus(QueryServiceName, serving)
}

func (s *GRPCServer) GetData(ctx context.Context, filter *structpb.Struct) (*structpb.ListValue, error) {
	params, err := queryParams(filter)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	points, err := s.service.Query(ctx, params)
	if err != nil {
		if domain.IsClientError(err) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		s.logger.Error("Failed to query points", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to retrieve data")
	}

	list, err := pointsList(points)
	if err != nil {
		s.logger.Error("Failed to encode points", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to encode data")
	}
	return list, nil
}

// health и reflection доступны без учётных данных
func requiresAuth(_ context.Context, c interceptors.CallMeta) bool {
	return c.FullMethod() == GetDataMethod
}

func authFunc(a Authenticator) grpcauth.AuthFunc {
	return func(ctx context.Context) (context.Context, error) {
		header := strings.Join(metadata.ValueFromIncomingContext(ctx, "authorization"), " ")
		if err := a.UserHeader(header); err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid credentials")
		}
		return ctx, nil
	}
}

// Custom metrics interceptor для детального отслеживания статусов и длительности с статусом
func unaryMetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		var statusCode string
		if err != nil {
			if st, ok := status.FromError(err); ok {
				statusCode = st.Code().String()
			} else {
				statusCode = codes.Unknown.String()
			}
		} else {
			statusCode = codes.OK.String()
		}

		duration := time.Since(start).Seconds()

		metrics.GRPCRequests.WithLabelValues(info.FullMethod, statusCode).Inc()
		metrics.GRPCRequestDuration.WithLabelValues(info.FullMethod, statusCode).Observe(duration)

		return resp, err
	}
}

// Logger adapter для grpc middleware
func interceptorLogger(l *zap.Logger) logging.Logger {
	return logging.LoggerFunc(func(_ context.Context, lvl logging.Level, msg string, fields ...any) {
		f := make([]zap.Field, 0, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			key, ok := fields[i].(string)
			if !ok {
				continue
			}
			f = append(f, zap.Any(key, fields[i+1]))
		}
		logger := l.WithOptions(zap.AddCallerSkip(1)).With(f...)

		switch lvl {
		case logging.LevelDebug:
			logger.Debug(msg)
		case logging.LevelInfo:
			logger.Info(msg)
		case logging.LevelWarn:
			logger.Warn(msg)
		case logging.LevelError:
			logger.Error(msg)
		default:
			logger.Info(msg)
		}
	})
}
