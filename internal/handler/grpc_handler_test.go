package handler_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-ap-procurement/internal/common/auth"
	"github.com/pesio-ai/be-ap-procurement/internal/common/logger"
	"github.com/pesio-ai/be-ap-procurement/internal/handler"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
	"github.com/pesio-ai/be-ap-procurement/internal/repository/memory"
	"github.com/pesio-ai/be-ap-procurement/internal/service"
)

type grpcAPI struct {
	t         *testing.T
	conn      *grpc.ClientConn
	validator *auth.Validator
}

func newGRPCAPI(t *testing.T) *grpcAPI {
	t.Helper()
	v := auth.NewValidator(secret, "")
	documents := service.NewDocumentService(memory.New(), nil, logger.Nop())

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(auth.UnaryServerInterceptor(v)))
	handler.RegisterDocumentServiceServer(srv, handler.NewGRPCHandler(documents, zerolog.Nop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &grpcAPI{t: t, conn: conn, validator: v}
}

func (g *grpcAPI) call(role repository.Role, method string, in map[string]any) (*structpb.Struct, error) {
	g.t.Helper()
	req, err := structpb.NewStruct(in)
	require.NoError(g.t, err)

	ctx := context.Background()
	if role != "" {
		tok, err := g.validator.Issue(auth.UserContext{
			UserID:       "grpc-" + string(role),
			Role:         string(role),
			EnterpriseID: "ent-1",
		}, time.Hour)
		require.NoError(g.t, err)
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok)
	}

	out := &structpb.Struct{}
	err = g.conn.Invoke(ctx, "/"+handler.ServiceName+"/"+method, req, out)
	return out, err
}

func TestGRPC_CreateValidateAndGet(t *testing.T) {
	g := newGRPCAPI(t)

	_, err := g.call("", "Create", map[string]any{"type": "NEED_SHEET"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	created, err := g.call(repository.RoleBuyer, "Create", map[string]any{
		"type":    "NEED_SHEET",
		"payload": map[string]any{"object": "Chairs", "estimated_amount": "300"},
	})
	require.NoError(t, err)
	fields := created.AsMap()
	assert.Equal(t, "IN_PROGRESS", fields["status"])
	id := fields["id"]

	_, err = g.call(repository.RoleTreasury, "Validate", map[string]any{"type": "NEED_SHEET", "id": id})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	validated, err := g.call(repository.RoleBuyerSupervisor, "Validate", map[string]any{"type": "NEED_SHEET", "id": id})
	require.NoError(t, err)
	assert.Equal(t, "VALIDATED", validated.AsMap()["status"])

	_, err = g.call(repository.RoleBuyerSupervisor, "Validate", map[string]any{"type": "NEED_SHEET", "id": id})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = g.call(repository.RoleAccountant, "Reject", map[string]any{"type": "NEED_SHEET", "id": id})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	got, err := g.call(repository.RoleDirector, "Get", map[string]any{"code": fields["code"]})
	require.NoError(t, err)
	assert.Equal(t, "Chairs", got.AsMap()["object"])

	_, err = g.call(repository.RoleDirector, "Get", map[string]any{"type": "NEED_SHEET", "id": 99})
	assert.Equal(t, codes.NotFound, status.Code(err))

	history, err := g.call(repository.RoleDirector, "History", map[string]any{"type": "NEED_SHEET", "id": id})
	require.NoError(t, err)
	assert.Len(t, history.AsMap()["audit"], 2)
}

func TestGRPC_IDsAsStrings(t *testing.T) {
	g := newGRPCAPI(t)

	created, err := g.call(repository.RoleBuyer, "Create", map[string]any{
		"type":    "NEED_SHEET",
		"payload": map[string]any{"object": "Desks", "estimated_amount": "900"},
	})
	require.NoError(t, err)
	id := strconv.FormatInt(int64(created.AsMap()["id"].(float64)), 10)

	validated, err := g.call(repository.RoleBuyerSupervisor, "Validate", map[string]any{"type": "NEED_SHEET", "id": id})
	require.NoError(t, err)
	assert.Equal(t, "VALIDATED", validated.AsMap()["status"])

	_, err = g.call(repository.RoleDirector, "Get", map[string]any{"type": "NEED_SHEET", "id": "9007199254740993"})
	require.Equal(t, codes.NotFound, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "9007199254740993")

	for _, bad := range []any{float64(9007199254740993), 2.5, "twelve"} {
		_, err = g.call(repository.RoleDirector, "Get", map[string]any{"type": "NEED_SHEET", "id": bad})
		assert.Equal(t, codes.InvalidArgument, status.Code(err), "id %v", bad)
	}
}
