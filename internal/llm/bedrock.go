package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/spec-kit/support-agent/internal/config"
)

type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient completes prompts through the Bedrock Converse API.
type BedrockClient struct {
	api         converseAPI
	model       string
	maxTokens   int
	temperature float64
}

// NewBedrockClient loads AWS credentials from the environment for cfg.AWSRegion.
func NewBedrockClient(ctx context.Context, cfg config.LLMConfig) (*BedrockClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg), nil
}

func newBedrockClient(api converseAPI, cfg config.LLMConfig) *BedrockClient {
	return &BedrockClient{api: api, model: cfg.Model, maxTokens: cfg.MaxTokens, temperature: cfg.Temperature}
}

// Complete sends the window as a Converse call.
func (c *BedrockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(c.model) == "" {
		return nil, errors.New("llm: bedrock model id is required")
	}
	system, messages := toConverseMessages(req.Messages)

	inference := &brtypes.InferenceConfiguration{Temperature: aws.Float32(float32(c.temperature))}
	if c.maxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(c.maxTokens))
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(c.model),
		System:          system,
		Messages:        messages,
		InferenceConfig: inference,
	}
	if len(req.Tools) > 0 {
		input.ToolConfig = toConverseTools(req.Tools)
	}

	output, err := c.api.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}
	msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, ErrEmptyResponse
	}

	out := &Response{}
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			out.Text += b.Value
		case *brtypes.ContentBlockMemberToolUse:
			args := json.RawMessage("{}")
			if b.Value.Input != nil {
				if raw, err := b.Value.Input.MarshalSmithyDocument(); err == nil {
					args = normalizeArgs(raw)
				}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: args,
			})
		}
	}
	return out, nil
}

// toConverseMessages maps the window onto Converse turns. Converse wants the
// first turn from the user and strictly alternating roles, so adjacent blocks
// of the same role are merged and leading assistant turns are dropped.
func toConverseMessages(msgs []Message) ([]brtypes.SystemContentBlock, []brtypes.Message) {
	var system []brtypes.SystemContentBlock
	var out []brtypes.Message

	push := func(role brtypes.ConversationRole, blocks ...brtypes.ContentBlock) {
		if len(blocks) == 0 {
			return
		}
		if len(out) == 0 && role != brtypes.ConversationRoleUser {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, brtypes.Message{Role: role, Content: blocks})
	}

	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			if strings.TrimSpace(m.Content) != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
			}
		case RoleUser:
			if strings.TrimSpace(m.Content) != "" {
				push(brtypes.ConversationRoleUser, &brtypes.ContentBlockMemberText{Value: m.Content})
			}
		case RoleAssistant:
			var blocks []brtypes.ContentBlock
			if strings.TrimSpace(m.Content) != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal(normalizeArgs(tc.Arguments), &input); err != nil || input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(input),
				}})
			}
			push(brtypes.ConversationRoleAssistant, blocks...)
		case RoleTool:
			push(brtypes.ConversationRoleUser, &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
				ToolUseId: aws.String(m.ToolCallID),
				Content:   []brtypes.ToolResultContentBlock{toolResultContent(m.Content)},
			}})
		}
	}
	return system, out
}

func toolResultContent(content string) brtypes.ToolResultContentBlock {
	var structured map[string]any
	if err := json.Unmarshal([]byte(content), &structured); err == nil && structured != nil {
		return &brtypes.ToolResultContentBlockMemberJson{Value: document.NewLazyDocument(structured)}
	}
	return &brtypes.ToolResultContentBlockMemberText{Value: content}
}

func toConverseTools(tools []Tool) *brtypes.ToolConfiguration {
	specs := make([]brtypes.Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		specs = append(specs, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(t.Name),
			Description: aws.String(t.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(params)},
		}})
	}
	return &brtypes.ToolConfiguration{
		Tools:      specs,
		ToolChoice: &brtypes.ToolChoiceMemberAuto{Value: brtypes.AutoToolChoice{}},
	}
}
