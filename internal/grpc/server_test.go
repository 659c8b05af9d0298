package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/CoolE88/observatory/internal/domain"
	"github.com/CoolE88/observatory/internal/service"
	"github.com/CoolE88/observatory/internal/timefilter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Query(ctx context.Context, p service.QueryParams) ([]domain.DataPoint, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DataPoint), args.Error(1)
}

func (m *MockService) CheckDBConnection(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type tokenAuth string

func (t tokenAuth) UserHeader(header string) error {
	if header == "Bearer "+string(t) {
		return nil
	}
	return domain.ErrUnauthorized
}

func startServer(t *testing.T, mockService *MockService) *grpc.ClientConn {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	server := NewGRPCServer(mockService, tokenAuth("secret"), logger)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func authorized() context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer secret")
}

func TestGRPCServer_GetData(t *testing.T) {
	mockService := new(MockService)
	mockService.On("CheckDBConnection", mock.Anything).Return(nil).Maybe()
	conn := startServer(t, mockService)

	expected := service.QueryParams{
		Range:  timefilter.Params{PastDays: "7"},
		Bucket: "co2",
		Limit:  "10",
	}
	points := []domain.DataPoint{
		{Timestamp: "2024-01-02T00:00:00Z", Bucket: "co2", Payload: json.RawMessage(`{"co2":612,"room":"living"}`)},
	}
	mockService.On("Query", mock.Anything, expected).Return(points, nil)

	filter, err := structpb.NewStruct(map[string]any{
		"past_days": 7,
		"bucket":    "co2",
		"limit":     "10",
	})
	require.NoError(t, err)

	resp, err := GetData(authorized(), conn, filter)
	require.NoError(t, err)
	require.Len(t, resp.GetValues(), 1)

	point := resp.GetValues()[0].GetStructValue().AsMap()
	assert.Equal(t, "2024-01-02T00:00:00Z", point["timestamp"])
	assert.Equal(t, "co2", point["bucket"])
	assert.Equal(t, map[string]any{"co2": 612.0, "room": "living"}, point["payload"])
	mockService.AssertExpectations(t)
}

func TestGRPCServer_GetData_Unauthenticated(t *testing.T) {
	mockService := new(MockService)
	mockService.On("CheckDBConnection", mock.Anything).Return(nil).Maybe()
	conn := startServer(t, mockService)

	_, err := GetData(context.Background(), conn, &structpb.Struct{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	mockService.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestGRPCServer_GetData_InvalidFilter(t *testing.T) {
	mockService := new(MockService)
	mockService.On("CheckDBConnection", mock.Anything).Return(nil).Maybe()
	conn := startServer(t, mockService)

	tests := map[string]map[string]any{
		"unknown field":   {"colour": "red"},
		"fractional":      {"limit": 1.5},
		"non-scalar":      {"bucket": []any{"a"}},
		"invalid boolean": {"sample": true},
	}
	for name, fields := range tests {
		t.Run(name, func(t *testing.T) {
			filter, err := structpb.NewStruct(fields)
			require.NoError(t, err)

			_, err = GetData(authorized(), conn, filter)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestGRPCServer_GetData_ServiceErrors(t *testing.T) {
	mockService := new(MockService)
	mockService.On("CheckDBConnection", mock.Anything).Return(nil).Maybe()
	conn := startServer(t, mockService)

	mockService.On("Query", mock.Anything, service.QueryParams{Range: timefilter.Params{From: "never"}}).
		Return(nil, domain.ErrInvalidDate)
	mockService.On("Query", mock.Anything, service.QueryParams{Bucket: "b"}).
		Return(nil, errors.New("connection refused"))

	filter, _ := structpb.NewStruct(map[string]any{"from": "never"})
	_, err := GetData(authorized(), conn, filter)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	filter, _ = structpb.NewStruct(map[string]any{"bucket": "b"})
	_, err = GetData(authorized(), conn, filter)
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestGRPCServer_Health(t *testing.T) {
	mockService := new(MockService)
	mockService.On("CheckDBConnection", mock.Anything).Return(nil)
	conn := startServer(t, mockService)

	client := healthpb.NewHealthClient(conn)
	require.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: QueryServiceName})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 20*time.Millisecond)
}

func TestGRPCServer_CheckHealth_StoreDown(t *testing.T) {
	mockService := new(MockService)
	mockService.On("CheckDBConnection", mock.Anything).Return(errors.New("db down"))
	logger, _ := zap.NewDevelopment()
	server := NewGRPCServer(mockService, tokenAuth("secret"), logger)

	server.checkHealth(context.Background())

	resp, err := server.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: QueryServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestQueryParams(t *testing.T) {
	filter, err := structpb.NewStruct(map[string]any{
		"from":   "2024-01-01T00:00:00Z",
		"to":     "2024-02-01T00:00:00Z",
		"sample": 50,
		"bucket": nil,
	})
	require.NoError(t, err)

	p, err := queryParams(filter)
	require.NoError(t, err)
	assert.Equal(t, service.QueryParams{
		Range:  timefilter.Params{From: "2024-01-01T00:00:00Z", To: "2024-02-01T00:00:00Z"},
		Sample: "50",
	}, p)
}
