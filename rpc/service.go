// Package rpc serves session management as a Connect service.
//
// Requests and responses are google.protobuf.Struct messages, so any Connect,
// gRPC or gRPC-Web client can call the service without generated stubs:
//
//	path, handler := rpc.NewHandler(x)
//	mux.Handle(path, handler)
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/relay/core/fault"
	"github.com/tailored-agentic-units/relay/exchange"
	"github.com/tailored-agentic-units/relay/session"
)

// ServiceName is the fully-qualified name of the session service.
const ServiceName = "relay.v1.SessionService"

// Procedure paths of the session service.
const (
	GetSessionProcedure                = "/" + ServiceName + "/GetSession"
	BindSessionProcedure               = "/" + ServiceName + "/BindSession"
	ClearSessionProcedure              = "/" + ServiceName + "/ClearSession"
	FindSessionByConversationProcedure = "/" + ServiceName + "/FindSessionByConversation"
	ListSessionsProcedure              = "/" + ServiceName + "/ListSessions"
)

const (
	defaultListLimit = 10
	maxListLimit     = 50
)

var (
	ErrMissingField = errors.New("required field is missing")
	ErrLimitRange   = fmt.Errorf("limit must be between 1 and %d", maxListLimit)
	ErrNegative     = errors.New("offset must not be negative")
)

type (
	Request  = connect.Request[structpb.Struct]
	Response = connect.Response[structpb.Struct]
)

// Service implements the session service over an Exchange.
type Service struct {
	exchange *exchange.Exchange
}

// NewService creates a Service for x.
func NewService(x *exchange.Exchange) *Service {
	return &Service{exchange: x}
}

// NewHandler builds the HTTP handler for the session service and returns it
// with the path prefix it serves.
func NewHandler(x *exchange.Exchange, opts ...connect.HandlerOption) (string, http.Handler) {
	svc := NewService(x)

	mux := http.NewServeMux()
	mux.Handle(GetSessionProcedure, connect.NewUnaryHandler(GetSessionProcedure, svc.GetSession, opts...))
	mux.Handle(BindSessionProcedure, connect.NewUnaryHandler(BindSessionProcedure, svc.BindSession, opts...))
	mux.Handle(ClearSessionProcedure, connect.NewUnaryHandler(ClearSessionProcedure, svc.ClearSession, opts...))
	mux.Handle(FindSessionByConversationProcedure, connect.NewUnaryHandler(FindSessionByConversationProcedure, svc.FindSessionByConversation, opts...))
	mux.Handle(ListSessionsProcedure, connect.NewUnaryHandler(ListSessionsProcedure, svc.ListSessions, opts...))

	return "/" + ServiceName + "/", mux
}

// GetSession returns {session: {...}} for the session_id field.
func (s *Service) GetSession(ctx context.Context, req *Request) (*Response, error) {
	sessionID, err := requiredString(req.Msg, "session_id")
	if err != nil {
		return nil, toConnectError(err)
	}

	rec, err := s.exchange.SessionInfo(sessionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return respond(map[string]any{"session": recordFields(rec)})
}

// BindSession binds the conversation_id field to the session_id field.
func (s *Service) BindSession(ctx context.Context, req *Request) (*Response, error) {
	sessionID, err := requiredString(req.Msg, "session_id")
	if err != nil {
		return nil, toConnectError(err)
	}
	conversationID, err := requiredString(req.Msg, "conversation_id")
	if err != nil {
		return nil, toConnectError(err)
	}

	result, err := s.exchange.BindSession(ctx, sessionID, conversationID)
	if err != nil {
		return nil, toConnectError(err)
	}

	fields := map[string]any{
		"session": recordFields(result.Record),
		"created": result.Created,
	}
	if result.Evicted != nil {
		fields["evicted_session_id"] = result.Evicted.SessionID
	}
	if result.Detached != "" {
		fields["detached_conversation_id"] = result.Detached
	}
	return respond(fields)
}

// ClearSession drops the session_id field's session and reports whether it
// existed.
func (s *Service) ClearSession(ctx context.Context, req *Request) (*Response, error) {
	sessionID, err := requiredString(req.Msg, "session_id")
	if err != nil {
		return nil, toConnectError(err)
	}

	_, existed := s.exchange.ClearSession(ctx, sessionID)
	return respond(map[string]any{"session_id": sessionID, "existed": existed})
}

// FindSessionByConversation returns the session bound to the
// conversation_id field.
func (s *Service) FindSessionByConversation(ctx context.Context, req *Request) (*Response, error) {
	conversationID, err := requiredString(req.Msg, "conversation_id")
	if err != nil {
		return nil, toConnectError(err)
	}

	rec, err := s.exchange.FindSessionByConversation(conversationID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return respond(map[string]any{"session": recordFields(rec)})
}

// ListSessions returns a page of sessions selected by the optional limit
// (1..50, default 10) and offset fields.
func (s *Service) ListSessions(ctx context.Context, req *Request) (*Response, error) {
	limit, offset, err := pageFields(req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}

	page := s.exchange.ListSessions(offset, limit)
	sessions := make([]any, len(page.Records))
	for i, rec := range page.Records {
		sessions[i] = recordFields(rec)
	}
	return respond(map[string]any{
		"total":    page.Total,
		"limit":    limit,
		"offset":   offset,
		"sessions": sessions,
	})
}

func respond(fields map[string]any) (*Response, error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to encode response: %w", err))
	}
	return connect.NewResponse(msg), nil
}

func recordFields(rec session.Record) map[string]any {
	return map[string]any{
		"session_id":      rec.SessionID,
		"user_id":         rec.UserID,
		"conversation_id": rec.ConversationID,
		"created_at":      rec.CreatedAt.Format(time.RFC3339Nano),
		"last_activity":   rec.LastActivity.Format(time.RFC3339Nano),
	}
}

func requiredString(msg *structpb.Struct, key string) (string, error) {
	v, ok := msg.GetFields()[key]
	if !ok || v.GetStringValue() == "" {
		return "", fault.Validation("rpc."+key, fmt.Errorf("%w: %s", ErrMissingField, key))
	}
	return v.GetStringValue(), nil
}

func pageFields(msg *structpb.Struct) (limit, offset int, err error) {
	limit = defaultListLimit
	fields := msg.GetFields()

	if v, ok := fields["limit"]; ok {
		limit = int(v.GetNumberValue())
	}
	if v, ok := fields["offset"]; ok {
		offset = int(v.GetNumberValue())
	}

	if limit < 1 || limit > maxListLimit {
		return 0, 0, fault.Validation("rpc.limit", ErrLimitRange)
	}
	if offset < 0 {
		return 0, 0, fault.Validation("rpc.offset", ErrNegative)
	}
	return limit, offset, nil
}

// CodeFor maps an error to the Connect code reported for it.
func CodeFor(err error) connect.Code {
	switch fault.KindOf(err) {
	case fault.KindValidation:
		return connect.CodeInvalidArgument
	case fault.KindNotFound:
		return connect.CodeNotFound
	default:
		return connect.CodeInternal
	}
}

func toConnectError(err error) error {
	return connect.NewError(CodeFor(err), err)
}
