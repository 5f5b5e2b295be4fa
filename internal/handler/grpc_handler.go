package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-ap-procurement/internal/common/auth"
	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
	"github.com/pesio-ai/be-ap-procurement/internal/service"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "procurement.v1.DocumentService"

// DocumentServiceServer is the server API for the document service. Requests
// and responses are google.protobuf.Struct values carrying the same JSON
// shapes as the HTTP API. Struct numbers are doubles, so request ids at or
// above 2^53 must be sent as strings.
type DocumentServiceServer interface {
	Create(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Validate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Approve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reject(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// DocumentServiceDesc describes DocumentServiceServer for grpc.Server.
var DocumentServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DocumentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Create", DocumentServiceServer.Create),
		unary("Get", DocumentServiceServer.Get),
		unary("Validate", DocumentServiceServer.Validate),
		unary("Approve", DocumentServiceServer.Approve),
		unary("Reject", DocumentServiceServer.Reject),
		unary("History", DocumentServiceServer.History),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "procurement/v1/document_service.proto",
}

// RegisterDocumentServiceServer registers srv on s.
func RegisterDocumentServiceServer(s grpc.ServiceRegistrar, srv DocumentServiceServer) {
	s.RegisterService(&DocumentServiceDesc, srv)
}

func unary(name string, call func(DocumentServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(DocumentServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// GRPCHandler implements DocumentServiceServer
type GRPCHandler struct {
	documents *service.DocumentService
	logger    zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(documents *service.DocumentService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		documents: documents,
		logger:    logger.With().Str("handler", "grpc").Logger(),
	}
}

// Create creates a document
func (h *GRPCHandler) Create(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := grpcActor(ctx)
	if err != nil {
		return nil, err
	}
	var req createDocumentRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	h.logger.Info().
		Str("type", req.Type).
		Str("user_id", actor.UserID).
		Msg("gRPC Create called")

	rec, err := payloadRecord(req.Type, req.Payload)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	refs := make(map[repository.DocType]string, len(req.Refs))
	for k, v := range req.Refs {
		t, err := repository.ParseDocType(k)
		if err != nil {
			return nil, mapErrorToGRPC(err)
		}
		refs[t] = v
	}

	out, err := h.documents.Create(ctx, actor, rec, refs)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(out)
}

type getRequest struct {
	Type string     `json:"type"`
	ID   documentID `json:"id"`
	Code string     `json:"code"`
}

// Get retrieves a document by code, or by type and id
func (h *GRPCHandler) Get(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := grpcActor(ctx)
	if err != nil {
		return nil, err
	}
	var req getRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	var out repository.Record
	if req.Code != "" {
		out, err = h.documents.GetByCode(ctx, actor, req.Code)
	} else {
		var t repository.DocType
		if t, err = repository.ParseDocType(req.Type); err == nil {
			out, err = h.documents.Get(ctx, actor, t, int64(req.ID))
		}
	}
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(out)
}

// Validate validates a document
func (h *GRPCHandler) Validate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return h.transition(ctx, in, "Validate", h.documents.Validate)
}

// Approve approves a document
func (h *GRPCHandler) Approve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return h.transition(ctx, in, "Approve", h.documents.Approve)
}

// Reject rejects a document
func (h *GRPCHandler) Reject(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return h.transition(ctx, in, "Reject", h.documents.Reject)
}

func (h *GRPCHandler) transition(ctx context.Context, in *structpb.Struct, name string, fn transitionFunc) (*structpb.Struct, error) {
	actor, err := grpcActor(ctx)
	if err != nil {
		return nil, err
	}
	var req transitionRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	h.logger.Info().
		Str("type", req.Type).
		Int64("id", int64(req.ID)).
		Str("user_id", actor.UserID).
		Msgf("gRPC %s called", name)

	t, err := repository.ParseDocType(req.Type)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	out, err := fn(ctx, actor, t, int64(req.ID), req.Comment)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(out)
}

// History returns a document with its audit and validation trails
func (h *GRPCHandler) History(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := grpcActor(ctx)
	if err != nil {
		return nil, err
	}
	var req getRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	t, err := repository.ParseDocType(req.Type)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	out, err := h.documents.History(ctx, actor, t, int64(req.ID))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(out)
}

func grpcActor(ctx context.Context) (service.Actor, error) {
	uc, err := auth.GetUserContext(ctx)
	if err != nil {
		return service.Actor{}, mapErrorToGRPC(err)
	}
	return actorFrom(uc), nil
}

// documentID decodes an id from a JSON integer or a decimal string. Whole
// doubles are accepted below 2^53, where they are exact.
type documentID int64

func (d *documentID) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = documentID(n)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return errors.InvalidInput("id", fmt.Sprintf("%s is not an integer", s))
	}
	if math.Abs(f) >= 1<<53 {
		return errors.InvalidInput("id", "ids at or above 2^53 must be sent as strings")
	}
	*d = documentID(f)
	return nil
}

func fromStruct(in *structpb.Struct, v interface{}) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if err := json.Unmarshal(data, v); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// mapErrorToGRPC translates an application error code into a gRPC status.
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, msg)
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, msg)
	case errors.ErrCodeUnauthenticated:
		return status.Error(codes.Unauthenticated, msg)
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.PermissionDenied, msg)
	case errors.ErrCodeInvalidState:
		return status.Error(codes.FailedPrecondition, msg)
	case errors.ErrCodeConflict:
		return status.Error(codes.Aborted, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}
