// Package grpcserver exposes the OTLP/gRPC logs receiver. Exports are
// re-encoded and handed to the same ingestion endpoint as the HTTP routes.
package grpcserver

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/tinytelemetry/logmock/internal/ingest"
	"github.com/tinytelemetry/logmock/internal/model"
)

// DefaultMaxRecvMsgSize bounds a single export request.
const DefaultMaxRecvMsgSize = 32 << 20

// Server implements collogspb.LogsServiceServer on top of an ingest.Endpoint.
type Server struct {
	collogspb.UnimplementedLogsServiceServer

	addr     string
	endpoint *ingest.Endpoint
	logger   zerolog.Logger
	maxRecv  int

	grpcServer *grpc.Server
	listener   net.Listener
}

// NewServer creates an OTLP/gRPC receiver. maxRecv of 0 uses DefaultMaxRecvMsgSize.
func NewServer(addr string, endpoint *ingest.Endpoint, maxRecv int, logger zerolog.Logger) *Server {
	if addr == "" {
		addr = "0.0.0.0:4317"
	}
	if maxRecv <= 0 {
		maxRecv = DefaultMaxRecvMsgSize
	}
	return &Server{
		addr:     addr,
		endpoint: endpoint,
		logger:   logger.With().Str("component", "grpcserver").Logger(),
		maxRecv:  maxRecv,
	}
}

// Export records and decodes one OTLP export.
func (s *Server) Export(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	body, err := proto.Marshal(req)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "re-encode export: %v", err)
	}

	code, msg := s.endpoint.Handle(ingest.RouteOTLPGRPCExport, body, exportMetadata(ctx, len(body)))
	switch code {
	case http.StatusOK:
		return &collogspb.ExportLogsServiceResponse{}, nil
	case http.StatusBadRequest:
		return nil, status.Error(codes.InvalidArgument, msg)
	case http.StatusNotFound:
		return nil, status.Error(codes.Unimplemented, "logs export is not routed")
	default:
		return nil, status.Error(codes.Internal, msg)
	}
}

// exportMetadata builds environ-style metadata from the incoming gRPC call.
func exportMetadata(ctx context.Context, bodyLen int) model.Metadata {
	md := model.Metadata{
		model.MetaRequestMethod:  http.MethodPost,
		model.MetaPathInfo:       ingest.RouteOTLPGRPCExport,
		model.MetaServerProtocol: "HTTP/2.0",
		model.MetaContentType:    "application/grpc",
		model.MetaContentLength:  strconv.Itoa(bodyLen),
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		md[model.MetaRemoteAddr] = remoteHost(p.Addr.String())
	}

	if incoming, ok := metadata.FromIncomingContext(ctx); ok {
		for name, values := range incoming {
			if name == "content-type" {
				continue
			}
			for _, v := range values {
				md.SetHeader(strings.TrimPrefix(name, ":"), v)
			}
		}
	}

	requestID := md.Header("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	md[model.MetaRequestID] = requestID
	return md
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// Register attaches the logs service to an existing gRPC server.
func (s *Server) Register(gs *grpc.Server) {
	collogspb.RegisterLogsServiceServer(gs, s)
}

// Serve registers the service on a new gRPC server and blocks serving lis.
func (s *Server) Serve(lis net.Listener) error {
	s.grpcServer = grpc.NewServer(grpc.MaxRecvMsgSize(s.maxRecv))
	s.Register(s.grpcServer)
	s.listener = lis
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("listening")
	return s.grpcServer.Serve(lis)
}

// Listen binds the configured address.
func (s *Server) Listen() (net.Listener, error) {
	return net.Listen("tcp", s.addr)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
}
