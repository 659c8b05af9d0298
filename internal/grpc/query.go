package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/CoolE88/observatory/internal/domain"
	"github.com/CoolE88/observatory/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	QueryServiceName = "observatory.v1.Query"
	GetDataMethod    = "/" + QueryServiceName + "/GetData"
)

// QueryServer выборка точек по gRPC. Фильтр и ответ передаются как
// google.protobuf.Struct и google.protobuf.ListValue, поэтому сервису
// не нужен сгенерированный код.
type QueryServer interface {
	GetData(ctx context.Context, filter *structpb.Struct) (*structpb.ListValue, error)
}

var queryServiceDesc = grpc.ServiceDesc{
	ServiceName: QueryServiceName,
	HandlerType: (*QueryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetData",
			Handler:    getDataHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "observatory/v1/query.proto",
}

func RegisterQueryServer(s grpc.ServiceRegistrar, srv QueryServer) {
	s.RegisterService(&queryServiceDesc, srv)
}

func getDataHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryServer).GetData(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetDataMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QueryServer).GetData(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// GetData клиентская сторона Query/GetData
func GetData(ctx context.Context, cc grpc.ClientConnInterface, filter *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := cc.Invoke(ctx, GetDataMethod, filter, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// queryParams переводит фильтр в те же параметры, что приходят в HTTP query string.
// Числа допускаются только целые.
func queryParams(filter *structpb.Struct) (service.QueryParams, error) {
	var p service.QueryParams
	for key, value := range filter.GetFields() {
		str, err := scalarString(key, value)
		if err != nil {
			return service.QueryParams{}, err
		}

		switch key {
		case "from":
			p.Range.From = str
		case "to":
			p.Range.To = str
		case "past_days":
			p.Range.PastDays = str
		case "bucket":
			p.Bucket = str
		case "limit":
			p.Limit = str
		case "sample":
			p.Sample = str
		default:
			return service.QueryParams{}, fmt.Errorf("%w: unknown filter field %q", domain.ErrBadRequest, key)
		}
	}
	return p, nil
}

func scalarString(key string, value *structpb.Value) (string, error) {
	switch v := value.GetKind().(type) {
	case *structpb.Value_StringValue:
		return v.StringValue, nil
	case *structpb.Value_NumberValue:
		n := v.NumberValue
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return "", fmt.Errorf("%w: %s must be an integer", domain.ErrBadRequest, key)
		}
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	case *structpb.Value_NullValue:
		return "", nil
	default:
		return "", fmt.Errorf("%w: %s must be a string or a number", domain.ErrBadRequest, key)
	}
}

// pointsList собирает ответ; payload разворачивается в google.protobuf.Value
func pointsList(points []domain.DataPoint) (*structpb.ListValue, error) {
	items := make([]any, len(points))
	for i, p := range points {
		var payload any
		if err := json.Unmarshal(p.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload of %s/%s: %w", p.Bucket, p.Timestamp, err)
		}
		items[i] = map[string]any{
			"timestamp": p.Timestamp,
			"bucket":    p.Bucket,
			"payload":   payload,
		}
	}
	return structpb.NewList(items)
}
