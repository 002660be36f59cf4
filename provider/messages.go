package provider

import (
	"context"
	"net/http"
	"strconv"

	"github.com/tailored-agentic-units/relay/core/fault"
	"github.com/tailored-agentic-units/relay/core/protocol"
	"github.com/tailored-agentic-units/relay/core/response"
)

// ListMessages lists the messages of a chat, filtered and ordered by query.
func (c *Client) ListMessages(ctx context.Context, query protocol.ListQuery) ([]protocol.Message, error) {
	params := map[string]string{
		"chat_id":         query.ChatID,
		"conversation_id": query.ConversationID,
		"role":            string(query.Role),
		"content_type":    string(query.ContentType),
		"order":           string(query.Order),
	}
	if query.Limit > 0 {
		params["top"] = strconv.Itoa(query.Limit)
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/chat/message/list", params, nil)
	if err != nil {
		return nil, err
	}

	env, err := c.doEnvelope("provider.ListMessages", req)
	if err != nil {
		return nil, err
	}

	messages, err := response.ParseMessages(env)
	if err != nil {
		return nil, fault.Upstream("provider.ListMessages", http.StatusOK, "", err)
	}
	return messages, nil
}
