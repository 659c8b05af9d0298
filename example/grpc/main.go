package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	appgrpc "github.com/CoolE88/observatory/internal/grpc"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func main() {
	addr := flag.String("addr", "localhost:9090", "gRPC server address")
	token := flag.String("token", "", "USER_BEARER_TOKEN of the server")
	bucket := flag.String("bucket", "", "bucket to query")
	flag.Parse()

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Printf("Failed to close connection: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Тест 1: health
	fmt.Println("=== Test 1: Health ===")
	testHealth(ctx, conn)

	// Тест 2: выборка за последние сутки
	fmt.Println("\n=== Test 2: GetData ===")
	authCtx := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+*token)
	testGetData(authCtx, conn, map[string]any{"past_days": 1, "bucket": *bucket, "limit": 10})

	// Тест 3: ошибки валидации
	fmt.Println("\n=== Test 3: Validation Errors ===")
	testGetData(authCtx, conn, map[string]any{"from": "invalid-date"})
	testGetData(authCtx, conn, map[string]any{"limit": -1})
	testGetData(ctx, conn, map[string]any{})
}

func testHealth(ctx context.Context, conn *grpc.ClientConn) {
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: appgrpc.QueryServiceName})
	if err != nil {
		log.Printf("Health check failed: %v", err)
		return
	}
	fmt.Printf("Status: %s\n", resp.GetStatus())
}

func testGetData(ctx context.Context, conn *grpc.ClientConn, fields map[string]any) {
	filter, err := structpb.NewStruct(fields)
	if err != nil {
		log.Printf("Invalid filter: %v", err)
		return
	}

	resp, err := appgrpc.GetData(ctx, conn, filter)
	if err != nil {
		if st, ok := status.FromError(err); ok {
			fmt.Printf("gRPC error: %s (code: %s)\n", st.Message(), st.Code())
		} else {
			log.Printf("Error: %v", err)
		}
		return
	}

	fmt.Printf("Found %d points:\n", len(resp.GetValues()))
	for i, v := range resp.GetValues() {
		p := v.GetStructValue().AsMap()
		fmt.Printf("%d. %v %v %v\n", i+1, p["timestamp"], p["bucket"], p["payload"])
	}
}
