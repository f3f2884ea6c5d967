// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"companion-go/internal/config"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// 角色名。会话中的 "model" 在 OpenAI 兼容接口里对应 assistant。
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleModel     = "model"
)

// ErrEmptyResponse 表示接口返回成功但没有可用的文本。
var ErrEmptyResponse = errors.New("llm: empty response")

// Client defines the interface for an LLM client.
type Client interface {
	// Chat 以 role-based 消息与可选生成参数调用聊天接口，返回完整回复文本。
	Chat(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// ParamsFromConfig 把配置中非零的生成参数转换为 GenerationParams，全部为零时返回 nil。
func ParamsFromConfig(cfg config.LLMGenerationConfig) *GenerationParams {
	var gp GenerationParams
	set := false
	if cfg.Temperature > 0 {
		t := cfg.Temperature
		gp.Temperature = &t
		set = true
	}
	if cfg.TopP > 0 {
		p := cfg.TopP
		gp.TopP = &p
		set = true
	}
	if cfg.MaxTokens > 0 {
		m := cfg.MaxTokens
		gp.MaxTokens = &m
		set = true
	}
	if !set {
		return nil
	}
	return &gp
}

type openaiClient struct {
	model  string
	client *openai.Client
}

// NewClient 创建一个 OpenAI 兼容的聊天客户端。api_key 或 model 缺失时返回错误，
// 调用方据此判断远程生成是否可用。只调用一次，不自动重试。
func NewClient(cfg config.LLMConfig) (Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("llm: api_key and model are required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &openaiClient{model: cfg.Model, client: &client}, nil
}

// Chat calls the chat completions endpoint and returns the first choice.
func (c *openaiClient) Chat(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: toOpenAIMessages(messages),
	}
	if gen != nil {
		if gen.Temperature != nil {
			params.Temperature = openai.Float(*gen.Temperature)
		}
		if gen.TopP != nil {
			params.TopP = openai.Float(*gen.TopP)
		}
		if gen.MaxTokens != nil {
			params.MaxTokens = openai.Int(int64(*gen.MaxTokens))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant, RoleModel:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
