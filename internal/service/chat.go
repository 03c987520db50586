package service

import (
	"context"
	"fmt"

	"github.com/Rrens/chatvault/internal/config"
	"github.com/Rrens/chatvault/internal/domain"
	"github.com/Rrens/chatvault/internal/llm"
	"github.com/rs/zerolog/log"
)

// Generator produces text for a prompt
type Generator interface {
	GetProvider(name string) (llm.Provider, error)
}

// ChatReply is the outcome of one chat turn
type ChatReply struct {
	Conversation domain.Conversation `json:"conversation"`
	Reply        domain.Message      `json:"reply"`
	Model        string              `json:"model"`
	LatencyMs    int64               `json:"latency_ms"`
}

// ChatService sends user messages to the model and stores both sides
type ChatService struct {
	generator    Generator
	systemPrompt string
	contextSize  int
	opts         llm.Options
}

// NewChatService creates a chat service
func NewChatService(generator Generator, cfg config.ChatConfig) *ChatService {
	opts := llm.DefaultOptions()
	if cfg.MaxNewTokens > 0 {
		opts.MaxNewTokens = cfg.MaxNewTokens
	}
	if cfg.Temperature > 0 {
		opts.Temperature = cfg.Temperature
	}
	opts.DoSample = cfg.DoSample

	contextSize := cfg.ContextSize
	if contextSize <= 0 {
		contextSize = 10
	}

	return &ChatService{
		generator:    generator,
		systemPrompt: cfg.SystemPrompt,
		contextSize:  contextSize,
		opts:         opts,
	}
}

// Send appends text to the active conversation, creating one when none is
// active, and appends the model's reply. When generation fails the user
// message stays stored and the error is returned.
func (s *ChatService) Send(ctx context.Context, sess *Session, text, provider, model string) (*ChatReply, error) {
	repo := sess.Conversations

	active := repo.Active()
	if active == nil {
		created, err := repo.Create(ctx)
		if err != nil {
			return nil, err
		}
		active = created
	}

	conv, err := repo.AppendMessage(ctx, active.ID, domain.Message{Role: domain.RoleUser, Content: text})
	if err != nil {
		return nil, err
	}

	p, err := s.generator.GetProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrGeneration, err)
	}

	prompt := llm.BuildPrompt(s.systemPrompt, conv.Messages, s.contextSize)
	resp, err := p.Generate(ctx, prompt, s.opts, model)
	if err != nil {
		log.Error().Err(err).
			Str("provider", p.Name()).
			Str("conversation_id", conv.ID).
			Msg("Text generation failed")
		return nil, fmt.Errorf("%w: %v", llm.ErrGeneration, err)
	}

	reply := domain.Message{Role: domain.RoleAssistant, Content: llm.ExtractReply(resp.Text)}
	conv, err = repo.AppendMessage(ctx, conv.ID, reply)
	if err != nil {
		return nil, err
	}

	return &ChatReply{
		Conversation: *conv,
		Reply:        reply,
		Model:        resp.Model,
		LatencyMs:    resp.LatencyMs,
	}, nil
}
