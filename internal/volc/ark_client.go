package volc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
)

const (
	defaultBase  = "https://ark.cn-beijing.volces.com"
	chatEndpoint = "/api/v3/chat/completions"
)

// ArkClient is a plain HTTP client for the Ark chat completions endpoint. With Mock set it
// answers locally without any network access.
type ArkClient struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Mock       bool
}

// Options for NewArkClient. Zero values fall back to defaults.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Mock    bool
}

func NewArkClient(opts Options) *ArkClient {
	base := opts.BaseURL
	if base == "" {
		base = defaultBase
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ArkClient{
		BaseURL:    strings.TrimRight(base, "/"),
		APIKey:     opts.APIKey,
		Model:      opts.Model,
		HTTPClient: &http.Client{Timeout: timeout},
		Mock:       opts.Mock,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Generate sends the messages to the chat completions endpoint and returns the first choice.
func (c *ArkClient) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	if c.Mock {
		return schema.AssistantMessage(mockReply(input), nil), nil
	}
	if c.Model == "" {
		return nil, errors.New("model required")
	}

	req := chatRequest{Model: c.Model, Messages: make([]chatMessage, 0, len(input))}
	for _, m := range input {
		if m == nil {
			continue
		}
		req.Messages = append(req.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	var resp chatResponse
	if err := c.postJSON(ctx, chatEndpoint, req, &resp); err != nil {
		return nil, err
	}
	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		if content == "" {
			content = resp.Choices[0].Delta.Content
		}
	}
	if content == "" {
		return nil, errors.New("empty chat content")
	}
	return schema.AssistantMessage(content, nil), nil
}

func (c *ArkClient) postJSON(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	logrus.WithFields(logrus.Fields{"url": req.URL.String(), "bytes": len(b)}).Debug("ark request")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("http %d: %s", res.StatusCode, string(bodyBytes))
	}
	return json.Unmarshal(bodyBytes, out)
}

// mockReply answers well enough for every story step to make progress offline.
func mockReply(input []*schema.Message) string {
	var last string
	for i := len(input) - 1; i >= 0; i-- {
		if input[i] != nil && input[i].Role == schema.User {
			last = input[i].Content
			break
		}
	}
	lower := strings.ToLower(last)
	switch {
	case strings.Contains(lower, "action keyword"):
		return "append_scene"
	case strings.Contains(lower, "json array"):
		return `[{"name":"Mira","background":"A lighthouse keeper's daughter.","motivations":"Find her missing father.","role":"Protagonist"},` +
			`{"name":"Corvin","background":"A disgraced cartographer.","motivations":"Redeem his name.","role":"Ally"}]`
	case strings.Contains(lower, "plot outline"):
		return "The storm arrives.\nThe lighthouse goes dark.\nA map is found.\nThe journey begins."
	case strings.Contains(lower, "develop the character"):
		return "Grows braver after facing the storm alone."
	default:
		return "The waves rose against the rocks as the lantern flickered once and went out."
	}
}
