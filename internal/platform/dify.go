package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zj591227045/wxauto-mgt/internal/errs"
)

// DefaultPlatformTimeout is the per-platform-call timeout named in §4.H.
const DefaultPlatformTimeout = 60 * time.Second

// DifyPlatform talks to a Dify chat-completion app (spec §6 downstream:
// "conversation-aware chat completion with optional image attachments,
// keyed by api_key, base_url, optional conversation_id"). No example repo
// in the corpus imports a Dify SDK, so this uses net/http directly —
// justified in the design ledger as the one platform variant without a
// corpus library to ground on.
type DifyPlatform struct {
	baseURL        string
	apiKey         string
	conversationID string
	httpClient     *http.Client
}

func (d *DifyPlatform) Initialize(config map[string]any) error {
	baseURL, _ := config["base_url"].(string)
	apiKey, _ := config["api_key"].(string)
	if baseURL == "" || apiKey == "" {
		return fmt.Errorf("dify: base_url and api_key are required")
	}
	d.baseURL = baseURL
	d.apiKey = apiKey
	d.conversationID, _ = config["conversation_id"].(string)
	d.httpClient = &http.Client{Timeout: DefaultPlatformTimeout}
	return nil
}

type difyChatRequest struct {
	Query          string         `json:"query"`
	User           string         `json:"user"`
	ConversationID string         `json:"conversation_id,omitempty"`
	ResponseMode   string         `json:"response_mode"`
	Inputs         map[string]any `json:"inputs"`
	Files          []difyFile     `json:"files,omitempty"`
}

type difyFile struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	URL            string `json:"url"`
}

type difyChatResponse struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
}

func (d *DifyPlatform) ProcessMessage(ctx context.Context, env Envelope) (Reply, error) {
	req := difyChatRequest{
		Query:          env.Content,
		User:           env.Sender,
		ConversationID: d.conversationID,
		ResponseMode:   "blocking",
		Inputs:         map[string]any{},
	}
	for _, url := range env.Attachments {
		req.Files = append(req.Files, difyFile{Type: "image", TransferMethod: "remote_url", URL: url})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Reply{}, errs.Classify(errs.KindInvalidRequest, "dify", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/chat-messages", bytes.NewReader(body))
	if err != nil {
		return Reply{}, errs.Classify(errs.KindInvalidRequest, "dify", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return Reply{}, errs.Classify(errs.KindUnavailable, "dify", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, errs.Classify(errs.KindUnavailable, "dify", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return Reply{}, errs.ClassifyPlatformError("dify", fmt.Errorf("http %d: %s", resp.StatusCode, raw), true)
	case resp.StatusCode >= 400:
		return Reply{}, errs.Classify(errs.KindInvalidRequest, "dify", fmt.Errorf("http %d: %s", resp.StatusCode, raw))
	}

	var out difyChatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Reply{}, errs.ClassifyPlatformError("dify", err, false)
	}
	d.conversationID = out.ConversationID

	if out.Answer == "" {
		return Reply{NoReply: true}, nil
	}
	return Reply{Content: out.Answer}, nil
}

func (d *DifyPlatform) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/parameters", nil)
	if err != nil {
		return errs.Classify(errs.KindInvalidRequest, "dify", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return errs.Classify(errs.KindUnavailable, "dify", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return errs.Classify(errs.KindInvalidRequest, "dify", fmt.Errorf("http %d", resp.StatusCode))
	}
	return nil
}
