package rpc

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a remote session service.
type Client struct {
	get  *connect.Client[structpb.Struct, structpb.Struct]
	bind *connect.Client[structpb.Struct, structpb.Struct]
	clr  *connect.Client[structpb.Struct, structpb.Struct]
	find *connect.Client[structpb.Struct, structpb.Struct]
	list *connect.Client[structpb.Struct, structpb.Struct]
}

// NewClient creates a Client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	newClient := func(procedure string) *connect.Client[structpb.Struct, structpb.Struct] {
		return connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+procedure, opts...)
	}

	return &Client{
		get:  newClient(GetSessionProcedure),
		bind: newClient(BindSessionProcedure),
		clr:  newClient(ClearSessionProcedure),
		find: newClient(FindSessionByConversationProcedure),
		list: newClient(ListSessionsProcedure),
	}
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (map[string]any, error) {
	return call(ctx, c.get, map[string]any{"session_id": sessionID})
}

func (c *Client) BindSession(ctx context.Context, sessionID, conversationID string) (map[string]any, error) {
	return call(ctx, c.bind, map[string]any{"session_id": sessionID, "conversation_id": conversationID})
}

func (c *Client) ClearSession(ctx context.Context, sessionID string) (map[string]any, error) {
	return call(ctx, c.clr, map[string]any{"session_id": sessionID})
}

func (c *Client) FindSessionByConversation(ctx context.Context, conversationID string) (map[string]any, error) {
	return call(ctx, c.find, map[string]any{"conversation_id": conversationID})
}

func (c *Client) ListSessions(ctx context.Context, offset, limit int) (map[string]any, error) {
	return call(ctx, c.list, map[string]any{"offset": offset, "limit": limit})
}

func call(ctx context.Context, client *connect.Client[structpb.Struct, structpb.Struct], fields map[string]any) (map[string]any, error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	resp, err := client.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg.AsMap(), nil
}
