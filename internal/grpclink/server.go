package grpclink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rmacdonaldsmith/rpcmesh/internal/auth"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/peerlink"
)

// Authenticator resolves a bearer token to the identity it was issued to.
type Authenticator interface {
	Authenticate(token string) (string, error)
}

// SessionHandler runs one session to completion. The stream ends when it returns.
type SessionHandler func(ctx context.Context, peer peerlink.Peer, authID string)

// Server accepts router sessions over gRPC.
type Server struct {
	config  Config
	handler SessionHandler
	auth    Authenticator

	mu       sync.Mutex
	server   *grpc.Server
	listener net.Listener
	closed   bool
}

// NewServer creates a server that hands each session to handler. A nil
// authenticator admits every stream as "anonymous".
func NewServer(config *Config, handler SessionHandler, authenticator Authenticator) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("session handler cannot be nil")
	}

	configCopy := *config
	configCopy.SetDefaults()

	s := &Server{
		config:  configCopy,
		handler: handler,
		auth:    authenticator,
	}
	s.server = grpc.NewServer(
		grpc.MaxRecvMsgSize(configCopy.MaxMessageSize),
		grpc.MaxSendMsgSize(configCopy.MaxMessageSize),
	)
	s.server.RegisterService(&serviceDesc, s)
	return s, nil
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener in the background.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		lis.Close()
		return peerlink.ErrClosed
	}
	s.listener = lis

	go func() {
		if err := s.server.Serve(lis); err != nil {
			slog.Error(fmt.Sprintf("%s - serve stopped: %v", logPrefix, err))
		}
	}()
	slog.Info(fmt.Sprintf("%s - listening on %s", logPrefix, lis.Addr()))
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the server and ends every open session stream.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.server.Stop()
	return nil
}

// Session implements the Router/Session stream.
func (s *Server) Session(stream grpc.ServerStream) error {
	ctx := stream.Context()

	authID := "anonymous"
	if s.auth != nil {
		id, err := s.auth.Authenticate(tokenFromMetadata(ctx))
		if err != nil {
			return status.Errorf(codes.Unauthenticated, "%v", err)
		}
		authID = id
	}

	if err := stream.SendHeader(metadata.MD{}); err != nil {
		return err
	}

	peer := newStreamPeer(stream, s.config.SendQueueSize, nil, nil)
	defer peer.Close()

	s.handler(ctx, peer, authID)
	return nil
}

func tokenFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}
	return auth.BearerToken(values[0])
}

// Dial opens a session stream to a router. A non-empty token is sent as bearer
// authorization metadata. Transport credentials default to insecure; options
// are applied after the defaults.
func Dial(ctx context.Context, target, token string, opts ...grpc.DialOption) (*StreamPeer, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client for %s: %w", target, err)
	}

	// The stream outlives ctx, which only bounds the dial.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if token != "" {
		streamCtx = metadata.AppendToOutgoingContext(streamCtx, "authorization", "Bearer "+token)
	}
	fail := func(err error) (*StreamPeer, error) {
		cancel()
		conn.Close()
		return nil, err
	}
	stopWatch := context.AfterFunc(ctx, cancel)

	stream, err := conn.NewStream(streamCtx, &serviceDesc.Streams[0], SessionMethod, grpc.WaitForReady(true))
	if err != nil {
		return fail(fmt.Errorf("failed to open session stream: %w", err))
	}

	// The router sends headers once it has authenticated the stream.
	md, err := stream.Header()
	if err == nil && md == nil {
		if err = stream.RecvMsg(new(structpb.ListValue)); err == nil || errors.Is(err, io.EOF) {
			err = errors.New("stream closed before headers")
		}
	}
	if err != nil {
		return fail(fmt.Errorf("session stream rejected: %w", err))
	}
	if !stopWatch() {
		return fail(ctx.Err())
	}

	return newStreamPeer(stream, 0, stream.CloseSend, func() {
		cancel()
		conn.Close()
	}), nil
}
