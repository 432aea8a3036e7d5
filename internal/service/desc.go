package service

import (
	"context"

	"google.golang.org/grpc"
)

// Полные имена методов сервиса
const (
	ServiceName                 = "tileworld.v1.World"
	World_JoinGame_FullMethod   = "/" + ServiceName + "/JoinGame"
	World_GetChunks_FullMethod  = "/" + ServiceName + "/GetChunks"
	World_GameStream_FullMethod = "/" + ServiceName + "/GameStream"
	World_Command_FullMethod    = "/" + ServiceName + "/Command"
)

// WorldServer - серверная сторона сервиса мира
type WorldServer interface {
	JoinGame(context.Context, *JoinRequest) (*JoinResponse, error)
	GetChunks(*ChunksRequest, grpc.ServerStreamingServer[ChunkMessage]) error
	GameStream(grpc.BidiStreamingServer[ClientMessage, ServerMessage]) error
	Command(context.Context, *CommandRequest) (*CommandResponse, error)
}

// World_ServiceDesc описывает сервис для grpc.Server без сгенерированного кода
var World_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WorldServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "JoinGame", Handler: _World_JoinGame_Handler},
		{MethodName: "Command", Handler: _World_Command_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "GetChunks", Handler: _World_GetChunks_Handler, ServerStreams: true},
		{StreamName: "GameStream", Handler: _World_GameStream_Handler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "tileworld/v1/world",
}

// RegisterWorldServer регистрирует реализацию на сервере
func RegisterWorldServer(s grpc.ServiceRegistrar, srv WorldServer) {
	s.RegisterService(&World_ServiceDesc, srv)
}

func _World_JoinGame_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(JoinRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorldServer).JoinGame(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: World_JoinGame_FullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorldServer).JoinGame(ctx, req.(*JoinRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _World_Command_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CommandRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorldServer).Command(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: World_Command_FullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorldServer).Command(ctx, req.(*CommandRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _World_GetChunks_Handler(srv any, stream grpc.ServerStream) error {
	m := new(ChunksRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(WorldServer).GetChunks(m, &grpc.GenericServerStream[ChunksRequest, ChunkMessage]{ServerStream: stream})
}

func _World_GameStream_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(WorldServer).GameStream(&grpc.GenericServerStream[ClientMessage, ServerMessage]{ServerStream: stream})
}

// WorldClient - клиентская сторона сервиса мира. Все вызовы идут через JSON-кодек.
type WorldClient interface {
	JoinGame(ctx context.Context, in *JoinRequest, opts ...grpc.CallOption) (*JoinResponse, error)
	GetChunks(ctx context.Context, in *ChunksRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[ChunkMessage], error)
	GameStream(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[ClientMessage, ServerMessage], error)
	Command(ctx context.Context, in *CommandRequest, opts ...grpc.CallOption) (*CommandResponse, error)
}

type worldClient struct {
	cc grpc.ClientConnInterface
}

// NewWorldClient создает клиента поверх соединения
func NewWorldClient(cc grpc.ClientConnInterface) WorldClient {
	return &worldClient{cc: cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *worldClient) JoinGame(ctx context.Context, in *JoinRequest, opts ...grpc.CallOption) (*JoinResponse, error) {
	out := new(JoinResponse)
	if err := c.cc.Invoke(ctx, World_JoinGame_FullMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *worldClient) Command(ctx context.Context, in *CommandRequest, opts ...grpc.CallOption) (*CommandResponse, error) {
	out := new(CommandResponse)
	if err := c.cc.Invoke(ctx, World_Command_FullMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *worldClient) GetChunks(ctx context.Context, in *ChunksRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[ChunkMessage], error) {
	stream, err := c.cc.NewStream(ctx, &World_ServiceDesc.Streams[0], World_GetChunks_FullMethod, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[ChunksRequest, ChunkMessage]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *worldClient) GameStream(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[ClientMessage, ServerMessage], error) {
	stream, err := c.cc.NewStream(ctx, &World_ServiceDesc.Streams[1], World_GameStream_FullMethod, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[ClientMessage, ServerMessage]{ClientStream: stream}, nil
}
