package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/suPer8Hu/moodtune/internal/ai"
	"github.com/suPer8Hu/moodtune/internal/common"
	"github.com/suPer8Hu/moodtune/internal/recommend"
)

type Options struct {
	System      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

const (
	defaultMaxTokens   = 1024
	defaultTemperature = 0.7
	defaultTimeout     = 60 * time.Second
)

// Service runs chat turns against the model and hands parsed
// recommendations to the persister.
type Service struct {
	provider  ai.Provider
	parser    *recommend.Parser
	persister recommend.Persister
	log       logrus.FieldLogger
	opts      Options
	now       func() time.Time
}

func NewService(provider ai.Provider, parser *recommend.Parser, persister recommend.Persister, log logrus.FieldLogger, opts Options) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if parser == nil {
		parser = recommend.NewParser(log)
	}
	if opts.System == "" {
		opts.System = SystemPrompt
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature <= 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Service{
		provider:  provider,
		parser:    parser,
		persister: persister,
		log:       log,
		opts:      opts,
		now:       time.Now,
	}
}

// SendMessage runs one turn on sess and returns the assistant message.
// On failure the user message stays in the transcript and sess carries a
// user-facing error, unless the caller cancelled ctx.
func (s *Service) SendMessage(ctx context.Context, userID string, sess *Session, content string) (ChatMessage, error) {
	if strings.TrimSpace(userID) == "" {
		return ChatMessage{}, ErrUnauthenticated
	}

	transcript := sess.beginTurn(newMessage(RoleUser, content, s.now()))
	log := s.log.WithFields(logrus.Fields{"user_id": userID, "turn_len": len(transcript)})

	start := time.Now()
	raw, err := s.call(ctx, transcript)
	if ctxErr := ctx.Err(); ctxErr != nil {
		sess.abandonTurn()
		log.WithError(ctxErr).Info("chat turn cancelled")
		return ChatMessage{}, ctxErr
	}
	if err != nil {
		sess.failTurn(UserMessage(err))
		log.WithError(err).WithField("cost_ms", time.Since(start).Milliseconds()).Warn("chat turn failed")
		return ChatMessage{}, err
	}

	reply := s.parser.Split(raw)
	s.persist(ctx, userID, reply.Candidates)

	assistant := newMessage(RoleAssistant, reply.Text, s.now())
	sess.completeTurn(assistant)

	log.WithFields(logrus.Fields{
		"candidates": len(reply.Candidates),
		"cost_ms":    time.Since(start).Milliseconds(),
	}).Info("chat turn completed")
	return assistant, nil
}

// Complete is the stateless variant: it returns the raw model reply for a
// caller-held transcript and persists nothing.
func (s *Service) Complete(ctx context.Context, userID string, messages []ai.Message) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrUnauthenticated
	}
	raw, err := s.call(ctx, messages)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("chat completion failed")
		return "", err
	}
	return raw, nil
}

// call invokes the provider under the configured timeout and maps failures
// onto the chat error taxonomy.
func (s *Service) call(ctx context.Context, messages []ai.Message) (string, error) {
	if s.provider == nil {
		return "", fmt.Errorf("%w: no provider configured", ErrUpstreamUnavailable)
	}
	cctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	raw, err := s.provider.Chat(cctx, ai.Request{
		System:      s.opts.System,
		Messages:    messages,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		return "", classify(err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: empty reply", ErrMalformedUpstreamResponse)
	}
	return raw, nil
}

func classify(err error) error {
	switch {
	case ai.IsRateLimited(err):
		return fmt.Errorf("%w: %w", ErrUpstreamRateLimited, err)
	case errors.Is(err, ai.ErrMalformedResponse):
		return fmt.Errorf("%w: %w", ErrMalformedUpstreamResponse, err)
	default:
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
}

func (s *Service) persist(ctx context.Context, userID string, cands []recommend.Candidate) {
	if s.persister == nil {
		return
	}
	keep := make([]recommend.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Track.Name != "" {
			keep = append(keep, c)
		}
	}
	if len(keep) == 0 {
		return
	}
	s.persister.Persist(ctx, recommend.Batch{
		TurnID:     common.MustULID(),
		UserID:     userID,
		Candidates: keep,
	})
}
