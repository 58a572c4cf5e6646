// Package api is the single call site to the language model. It exposes a
// synchronous Ask and hides provider-specific error shapes from callers.
package api

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

const defaultMaxTokens = 4096

// Client sends single-turn prompts to Anthropic, directly or through Bedrock.
type Client struct {
	inner     anthropic.Client
	model     anthropic.Model
	maxTokens int64
	tracker   *TokenTracker
}

// ClientConfig selects the endpoint and model for a Client.
type ClientConfig struct {
	Model anthropic.Model
	// APIKey falls back to ANTHROPIC_API_KEY when empty. Ignored for Bedrock.
	APIKey string
	// MaxTokens caps each reply. Zero uses 4096.
	MaxTokens     int64
	UseAWSBedrock bool
	AWSRegion     string
	AWSProfile    string
}

// NewClient builds a Client. A missing API key yields ErrNoCredential.
func NewClient(cfg ClientConfig) (*Client, error) {
	opts, err := requestOptions(cfg)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = bedrockModel(model)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Client{
		inner:     anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		tracker:   NewTokenTracker(model),
	}, nil
}

func requestOptions(cfg ClientConfig) ([]option.RequestOption, error) {
	if cfg.UseAWSBedrock {
		var load []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			load = append(load, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			load = append(load, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		return []option.RequestOption{bedrock.WithLoadDefaultConfig(context.Background(), load...)}, nil
	}

	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY or anthropic.api_key", ErrNoCredential)
	}
	return []option.RequestOption{option.WithAPIKey(key)}, nil
}

// bedrockProfiles maps Anthropic model names onto Bedrock inference profiles.
var bedrockProfiles = map[anthropic.Model]anthropic.Model{
	anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
	anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
	anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
	anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
	anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
	anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
}

func bedrockModel(model anthropic.Model) anthropic.Model {
	if profile, ok := bedrockProfiles[model]; ok {
		return profile
	}
	return model
}

// Model returns the model name requests are sent to. For Bedrock this is the
// inference profile, not the Anthropic name.
func (c *Client) Model() anthropic.Model { return c.model }

// Tracker returns the token usage accumulated by this client.
func (c *Client) Tracker() *TokenTracker { return c.tracker }

// Ask sends one user message and returns the concatenated text blocks of the
// reply. A reply cut off at the token cap is returned as is; the caller's
// parser decides whether it is usable.
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", &TransportError{Op: "messages.new", Err: err}
	}

	c.tracker.Record(resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.StopReason == anthropic.StopReasonMaxTokens)

	var text strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	return text.String(), nil
}
