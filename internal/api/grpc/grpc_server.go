package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olyamironova/escrow-book/internal/api/dto"
	"github.com/olyamironova/escrow-book/internal/core"
	"github.com/olyamironova/escrow-book/internal/domain"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName      = "escrowbook.v1.OrderBook"
	ClientIDMetadata = "x-client-id"
)

// OrderBookServer is the escrowbook.v1.OrderBook service. Messages are
// google.protobuf.Struct values carrying the JSON shapes of package dto.
type OrderBookServer interface {
	CreateOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FillOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FillMarketOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrderDetails(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetUserOrders(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var _ OrderBookServer = (*GRPCServer)(nil)

type unaryMethod func(OrderBookServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(OrderBookServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderBookServer)(nil),
	Methods: []grpc.MethodDesc{
		handler("CreateOrder", OrderBookServer.CreateOrder),
		handler("CancelOrder", OrderBookServer.CancelOrder),
		handler("FillOrder", OrderBookServer.FillOrder),
		handler("FillMarketOrder", OrderBookServer.FillMarketOrder),
		handler("GetOrderDetails", OrderBookServer.GetOrderDetails),
		handler("GetUserOrders", OrderBookServer.GetUserOrders),
	},
	Streams: []grpc.StreamDesc{},
}

type GRPCServer struct {
	Eng *core.Engine
}

func NewGRPCServer(eng *core.Engine) *GRPCServer {
	return &GRPCServer{Eng: eng}
}

// NewServer returns a grpc.Server with the order book registered and
// request logging installed.
func NewServer(eng *core.Engine, log *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(loggingInterceptor(log)))
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&ServiceDesc, NewGRPCServer(eng))
	return srv
}

func (s *GRPCServer) CreateOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req dto.CreateOrderRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	o, err := s.Eng.CreateOrder(ctx, req.ToCore(caller))
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(dto.OrderResponse{Order: dto.ConvertOrder(o)})
}

func (s *GRPCServer) CancelOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req dto.OrderIDRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	o, err := s.Eng.CancelOrder(ctx, caller, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(dto.OrderResponse{Order: dto.ConvertOrder(o)})
}

func (s *GRPCServer) FillOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req dto.FillOrderRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	fill, err := s.Eng.FillOrder(ctx, caller, req.OrderID, req.AmountToFill)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(dto.FillOrderResponse{Fill: dto.Fill(fill)})
}

func (s *GRPCServer) FillMarketOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req dto.FillMarketOrderRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	pair := domain.Pair{Base: req.Base, Quote: req.Quote}
	res, err := s.Eng.FillMarketOrder(ctx, caller, domain.Side(req.Side), pair, req.AmountToFill)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(dto.ConvertMatch(res))
}

func (s *GRPCServer) GetOrderDetails(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.OrderIDRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	o, err := s.Eng.GetOrderDetails(ctx, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(dto.OrderResponse{Order: dto.ConvertOrder(o)})
}

// GetUserOrders lists the orders of maker, or of the caller when maker is omitted.
func (s *GRPCServer) GetUserOrders(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.UserOrdersRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	maker := req.Maker
	if maker == (common.Address{}) {
		caller, err := callerFrom(ctx)
		if err != nil {
			return nil, err
		}
		maker = caller
	}
	return toStruct(dto.UserOrdersResponse{
		Maker:    maker,
		OrderIDs: s.Eng.GetUserOrders(ctx, maker),
	})
}

func callerFrom(ctx context.Context) (common.Address, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get(ClientIDMetadata)
	if len(vals) == 0 {
		return common.Address{}, status.Error(codes.Unauthenticated, "x-client-id metadata required")
	}
	if !common.IsHexAddress(vals[0]) {
		return common.Address{}, status.Error(codes.Unauthenticated, "x-client-id must be a hex address")
	}
	return common.HexToAddress(vals[0]), nil
}

func fromStruct(in *structpb.Struct, v any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// toStatus maps an engine error to a gRPC status carrying its kind.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrInvalidAsset),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidExpiry),
		errors.Is(err, domain.ErrInvalidSide),
		errors.Is(err, domain.ErrInvalidKind):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrUnauthorized):
		code = codes.PermissionDenied
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrInactive),
		errors.Is(err, domain.ErrAlreadyTerminal),
		errors.Is(err, domain.ErrExpired),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrNoMatch):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrTransferFailed),
		errors.Is(err, domain.ErrReentrant):
		code = codes.Aborted
	case errors.Is(err, domain.ErrStalePrice):
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return status.Error(code, fmt.Sprintf("%s: %v", domain.Kind(err), err))
}

func loggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		resp, err := next(ctx, req)
		if err != nil {
			log.Info("grpc request failed",
				zap.String("method", info.FullMethod),
				zap.String("code", status.Code(err).String()),
				zap.Error(err))
		} else {
			log.Debug("grpc request", zap.String("method", info.FullMethod))
		}
		return resp, err
	}
}
