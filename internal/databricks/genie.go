package databricks

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// GenieClient talks to the Databricks Genie conversational
// query API. Exposed to agents as a built-in tool.
type GenieClient struct {
	client  *Client
	spaceID string
}

// NewGenie builds a Genie client bound to one Genie space.
func NewGenie(client *Client, spaceID string) (*GenieClient, error) {
	if client == nil {
		return nil, fmt.Errorf("genie: databricks client is required")
	}
	if spaceID == "" {
		return nil, fmt.Errorf("genie: space id is required")
	}
	return &GenieClient{client: client, spaceID: spaceID}, nil
}

type genieMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	Content        string `json:"content"`
	Attachments    []struct {
		Text struct {
			Content string `json:"content"`
		} `json:"text"`
	} `json:"attachments"`
}

// Ask starts a conversation with the question and polls until
// Genie finishes answering or the context expires.
func (g *GenieClient) Ask(ctx context.Context, question string) (string, error) {
	started := &genieMessage{}
	path := fmt.Sprintf("/api/2.0/genie/spaces/%s/start-conversation", g.spaceID)
	if err := g.client.do(ctx, http.MethodPost, path, map[string]string{"content": question}, started); err != nil {
		return "", err
	}

	poll := fmt.Sprintf(
		"/api/2.0/genie/spaces/%s/conversations/%s/messages/%s",
		g.spaceID, started.ConversationID, started.ID,
	)

	for {
		msg := &genieMessage{}
		if err := g.client.do(ctx, http.MethodGet, poll, nil, msg); err != nil {
			return "", err
		}

		switch msg.Status {
		case "COMPLETED":
			return genieAnswer(msg), nil
		case "FAILED", "CANCELLED":
			return "", fmt.Errorf("genie: message %s ended %s", msg.ID, msg.Status)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func genieAnswer(msg *genieMessage) string {
	for _, att := range msg.Attachments {
		if att.Text.Content != "" {
			return att.Text.Content
		}
	}
	return msg.Content
}
