// Package grpclink carries WAMP sessions over a bidirectional gRPC stream.
//
// Each frame is a google.protobuf.ListValue holding the message's wire array,
// so the service needs no generated code:
//
//	service Router {
//	  rpc Session(stream google.protobuf.ListValue) returns (stream google.protobuf.ListValue);
//	}
package grpclink

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

const (
	serviceName = "rpcmesh.v1.Router"
	// SessionMethod is the full method name of the session stream.
	SessionMethod = "/" + serviceName + "/Session"
)

// sessionServer is the handler type registered with grpc.
type sessionServer interface {
	Session(grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*sessionServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Session",
			Handler:       sessionHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "rpcmesh/v1/router.proto",
}

func sessionHandler(srv any, stream grpc.ServerStream) error {
	return srv.(sessionServer).Session(stream)
}

// toFrame converts a message into its protobuf frame.
func toFrame(msg wamp.Message) (*structpb.ListValue, error) {
	frame, err := structpb.NewList(wamp.Encode(msg))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.MessageType(), err)
	}
	return frame, nil
}

// fromFrame decodes a protobuf frame. Numbers arrive as float64.
func fromFrame(frame *structpb.ListValue) (wamp.Message, error) {
	return wamp.Decode(frame.AsSlice())
}
