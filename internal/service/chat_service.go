package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"companion-go/internal/companion"
	"companion-go/internal/companion/session"
	"companion-go/internal/model"
	"companion-go/internal/repository"
	"companion-go/pkg/log"

	"github.com/google/uuid"
)

const (
	searchSize   = 20
	indexTimeout = 5 * time.Second
)

// ChatResult 是一次对话请求的返回。
type ChatResult struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
}

// TranscriptIndex 是聊天记录的全文索引，由 Elasticsearch 实现。
type TranscriptIndex interface {
	Index(ctx context.Context, doc model.TranscriptDocument) error
	Search(ctx context.Context, userID uint, query string, size int) ([]model.SearchHit, error)
	DeleteByUser(ctx context.Context, userID uint) error
}

// ChatService 负责把一条用户消息编排成一条回复并记录下来。
type ChatService interface {
	Respond(ctx context.Context, user *model.User, sessionID, message string) (*ChatResult, error)
	History(ctx context.Context, userID uint) ([]model.ChatMessage, error)
	Search(ctx context.Context, userID uint, query string) ([]model.SearchHit, error)
	Ready() bool
}

// ChatOptions 是编排过程中的可调参数。
type ChatOptions struct {
	TimeTagProbability float64
	MaxReplyChars      int
	ReplayLimit        int
	Rand               companion.Rand
	Now                func() time.Time
	// Index 为 nil 时不建立索引，Search 返回 ErrFeatureDisabled。
	Index TranscriptIndex
}

type chatService struct {
	messageRepo repository.ChatMessageRepository
	personaRepo repository.PersonaRepository
	sessions    *session.Manager
	generator   companion.ResponseGenerator
	ready       bool
	opts        ChatOptions
}

// NewChatService 创建 ChatService。ready 为 false 时所有对话请求直接返回 ErrServiceUnavailable。
func NewChatService(
	messageRepo repository.ChatMessageRepository,
	personaRepo repository.PersonaRepository,
	sessions *session.Manager,
	generator companion.ResponseGenerator,
	ready bool,
	opts ChatOptions,
) ChatService {
	if opts.Rand == nil {
		opts.Rand = companion.NewLockedRand(time.Now().UnixNano())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &chatService{
		messageRepo: messageRepo,
		personaRepo: personaRepo,
		sessions:    sessions,
		generator:   generator,
		ready:       ready,
		opts:        opts,
	}
}

// UserSessionPrefix 是某个用户所有会话 key 的公共前缀。
func UserSessionPrefix(userID uint) string {
	return fmt.Sprintf("%d:", userID)
}

func sessionKey(userID uint, sessionID string) string {
	return UserSessionPrefix(userID) + sessionID
}

func (s *chatService) Ready() bool {
	return s.ready
}

// Respond 处理一条用户消息：
// 先持久化用户消息，再在会话上下文中生成回复，最后持久化回复。
// 远程生成失败由生成器内部兜底，不会作为错误返回。
func (s *chatService) Respond(ctx context.Context, user *model.User, sessionID, message string) (*ChatResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if !s.ready {
		return nil, ErrServiceUnavailable
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	key := sessionKey(user.ID, sessionID)

	persona, err := s.personaRepo.FindByUserID(user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: load persona: %v", ErrStorage, err)
	}

	userMsg := &model.ChatMessage{UserID: user.ID, Sender: model.SenderUser, Message: message, Timestamp: s.opts.Now()}
	if err := s.messageRepo.Append(ctx, userMsg); err != nil {
		log.Errorf("[ChatService] 保存用户消息失败, userID: %d, error: %v", user.ID, err)
		return nil, fmt.Errorf("%w: append user message: %v", ErrStorage, err)
	}

	unlock := s.sessions.Lock(key)
	defer unlock()

	seed := session.Seed{
		Instruction:     companion.Compose(*persona),
		Acknowledgement: companion.AcknowledgeTurn(*persona),
	}
	sess, err := s.sessions.GetOrCreate(ctx, key, seed, s.replay(user.ID, userMsg.ID))
	if err == nil && sess.Instruction != seed.Instruction {
		// Persona 已变化（例如另一个实例写回了旧上下文），按新指令重建
		if err = s.sessions.Reset(ctx, key); err == nil {
			sess, err = s.sessions.GetOrCreate(ctx, key, seed, s.replay(user.ID, userMsg.ID))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	input := message
	if s.opts.Rand.Float64() < s.opts.TimeTagProbability {
		input = companion.TagMessage(companion.TimeOfDayTag(s.opts.Now().Hour()), message)
	}

	reply := s.generator.Generate(ctx, sess, input)
	text := reply.Text
	if !reply.Fallback {
		text = companion.Truncate(text, s.opts.MaxReplyChars)
	}
	log.Debugf("[ChatService] userID: %d, session: %s, sentiment: %s, fallback: %v", user.ID, sessionID, reply.Sentiment, reply.Fallback)

	sess.Append(session.RoleUser, input)
	sess.Append(session.RoleModel, text)
	if err := s.sessions.Save(ctx, sess); err != nil {
		log.Warnf("[ChatService] 保存会话失败, key: %s, error: %v", key, err)
	}

	aiMsg := &model.ChatMessage{UserID: user.ID, Sender: model.SenderAI, Message: text, Timestamp: s.opts.Now()}
	if err := s.messageRepo.Append(ctx, aiMsg); err != nil {
		log.Errorf("[ChatService] 保存回复失败, userID: %d, error: %v", user.ID, err)
		return nil, fmt.Errorf("%w: append reply: %v", ErrStorage, err)
	}

	s.index(ctx, userMsg, aiMsg)
	return &ChatResult{Response: text, SessionID: sessionID}, nil
}

// replay 在会话未命中时从聊天记录重建上下文，跳过刚写入的那条用户消息。
func (s *chatService) replay(userID, skipID uint) session.ReplayFunc {
	return func(ctx context.Context) ([]session.Turn, error) {
		limit := s.opts.ReplayLimit
		if limit > 0 {
			limit++
		}
		msgs, err := s.messageRepo.ListByUser(ctx, userID, limit)
		if err != nil {
			return nil, err
		}
		turns := make([]session.Turn, 0, len(msgs))
		for _, m := range msgs {
			if m.ID == skipID {
				continue
			}
			role := session.RoleUser
			if m.Sender == model.SenderAI {
				role = session.RoleModel
			}
			turns = append(turns, session.Turn{Role: role, Text: m.Message})
		}
		if s.opts.ReplayLimit > 0 && len(turns) > s.opts.ReplayLimit {
			turns = turns[len(turns)-s.opts.ReplayLimit:]
		}
		return turns, nil
	}
}

// index 异步写入全文索引，失败只记录日志。
func (s *chatService) index(ctx context.Context, msgs ...*model.ChatMessage) {
	if s.opts.Index == nil {
		return
	}
	docs := make([]model.TranscriptDocument, 0, len(msgs))
	for _, m := range msgs {
		docs = append(docs, model.TranscriptDocument{
			MessageID: m.ID,
			UserID:    m.UserID,
			Sender:    m.Sender,
			Message:   m.Message,
			Timestamp: m.Timestamp,
		})
	}
	go func() {
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), indexTimeout)
		defer cancel()
		for _, d := range docs {
			if err := s.opts.Index.Index(ictx, d); err != nil {
				log.Warnf("[ChatService] 索引聊天记录失败, messageID: %d, error: %v", d.MessageID, err)
			}
		}
		// 索引期间用户可能已被删除（级联删掉了全部消息），补删一次，不留孤儿文档
		userID := docs[0].UserID
		if n, err := s.messageRepo.CountByUser(ictx, userID); err == nil && n == 0 {
			if err := s.opts.Index.DeleteByUser(ictx, userID); err != nil {
				log.Warnf("[ChatService] 清理已删除用户的索引失败, userID: %d, error: %v", userID, err)
			}
		}
	}()
}

// History 返回用户的全部聊天记录，按时间升序。
func (s *chatService) History(ctx context.Context, userID uint) ([]model.ChatMessage, error) {
	msgs, err := s.messageRepo.ListByUser(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return msgs, nil
}

// Search 在用户自己的聊天记录中全文检索。
func (s *chatService) Search(ctx context.Context, userID uint, query string) ([]model.SearchHit, error) {
	if s.opts.Index == nil {
		return nil, ErrFeatureDisabled
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	return s.opts.Index.Search(ctx, userID, query, searchSize)
}
