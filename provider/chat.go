package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/tailored-agentic-units/relay/core/fault"
	"github.com/tailored-agentic-units/relay/core/protocol"
	"github.com/tailored-agentic-units/relay/core/response"
)

// ChatRequest is one user message sent to the bot.
type ChatRequest struct {
	UserID string
	// ConversationID continues an existing conversation. Empty starts a
	// new one.
	ConversationID string
	Message        string
}

var errNotStream = errors.New("expected an event stream")

type chatBody struct {
	BotID              string             `json:"bot_id"`
	UserID             string             `json:"user_id"`
	Stream             bool               `json:"stream"`
	AutoSaveHistory    bool               `json:"auto_save_history"`
	AdditionalMessages []protocol.Message `json:"additional_messages"`
}

func (c *Client) chatRequest(ctx context.Context, req ChatRequest, stream bool) (*http.Request, error) {
	userID := req.UserID
	if userID == "" {
		userID = c.cfg.UserID
	}

	body := chatBody{
		BotID:              c.cfg.BotID,
		UserID:             userID,
		Stream:             stream,
		AutoSaveHistory:    true,
		AdditionalMessages: []protocol.Message{protocol.NewUserText(req.Message)},
	}

	return c.newRequest(ctx, http.MethodPost, "/chat",
		map[string]string{"conversation_id": req.ConversationID}, body)
}

// CreateChat creates a non-streaming chat. The returned chat carries the
// chat and conversation ids used to poll for the reply.
func (c *Client) CreateChat(ctx context.Context, req ChatRequest) (*response.Chat, error) {
	httpReq, err := c.chatRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	env, err := c.doEnvelope("provider.CreateChat", httpReq)
	if err != nil {
		return nil, err
	}

	chat, err := response.ParseChat(env)
	if err != nil {
		return nil, fault.Upstream("provider.CreateChat", http.StatusOK, "", err)
	}
	return chat, nil
}

// StreamChat creates a streaming chat and returns the event stream body.
// The caller must close it. A non-2xx status, or a JSON envelope in place
// of the stream, is an upstream fault.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	const op = "provider.StreamChat"

	httpReq, err := c.chatRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fault.Upstream(op, 0, "", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeSize))
		return nil, fault.Upstream(op, resp.StatusCode, truncate(body),
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeSize))
		if env, err := response.ParseEnvelope(body); err == nil {
			if err := env.Err(op, resp.StatusCode); err != nil {
				return nil, err
			}
		}
		return nil, fault.Upstream(op, resp.StatusCode, truncate(body), errNotStream)
	}

	return resp.Body, nil
}
