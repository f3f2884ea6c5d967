package companion

import (
	"context"
	"time"

	"companion-go/internal/companion/session"
	"companion-go/pkg/llm"
	"companion-go/pkg/log"
)

// Reply 是一次生成的结果。Fallback 为 true 表示来自规则兜底。
type Reply struct {
	Text      string
	Fallback  bool
	Sentiment Sentiment
}

// ResponseGenerator 根据会话上下文为新输入生成回复。实现不返回错误，
// 任何远程失败都在内部转为兜底回复。
type ResponseGenerator interface {
	Generate(ctx context.Context, s *session.Session, input string) Reply
}

// RuleBasedGenerator 只用情绪判断和回复表作答。
type RuleBasedGenerator struct {
	responder *Responder
}

func NewRuleBasedGenerator(responder *Responder) *RuleBasedGenerator {
	return &RuleBasedGenerator{responder: responder}
}

// Generate 忽略会话上下文，只看用户消息本身（不含时间标签）。
func (g *RuleBasedGenerator) Generate(_ context.Context, _ *session.Session, input string) Reply {
	text := StripTag(input)
	sentiment := Classify(text)
	return Reply{
		Text:      g.responder.Fallback(text, sentiment),
		Fallback:  true,
		Sentiment: sentiment,
	}
}

// RemoteGenerator 调用远程模型，失败、超时或返回空文本时改用 fallback。
type RemoteGenerator struct {
	client   llm.Client
	params   *llm.GenerationParams
	timeout  time.Duration
	fallback ResponseGenerator
}

func NewRemoteGenerator(client llm.Client, params *llm.GenerationParams, timeout time.Duration, fallback ResponseGenerator) *RemoteGenerator {
	return &RemoteGenerator{client: client, params: params, timeout: timeout, fallback: fallback}
}

func (g *RemoteGenerator) Generate(ctx context.Context, s *session.Session, input string) Reply {
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	text, err := g.client.Chat(callCtx, toLLMMessages(s, input), g.params)
	if err != nil || text == "" {
		log.Warnf("远程生成失败，使用规则兜底: session=%s, err=%v", s.Key, err)
		return g.fallback.Generate(ctx, s, input)
	}
	return Reply{Text: text, Sentiment: Classify(StripTag(input))}
}

func toLLMMessages(s *session.Session, input string) []llm.Message {
	msgs := make([]llm.Message, 0, len(s.Turns)+1)
	for _, t := range s.Turns {
		role := llm.RoleUser
		if t.Role == session.RoleModel {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Text})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: input})
}
