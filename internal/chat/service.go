package chat

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/suPer8Hu/gemini-chat/internal/ai"
	"github.com/suPer8Hu/gemini-chat/internal/logger"
)

// TurnRequest is one submitted exchange. Only the latest user message is
// forwarded to the provider.
type TurnRequest struct {
	Messages  []Turn
	Bearer    string
	ClientIP  string
	RequestID string
}

type TurnResult struct {
	Content      string
	LimitReached bool
	Identity     string
	// Persisted is false for anonymous turns and for swallowed store failures.
	Persisted bool
}

type Service struct {
	provider ai.Provider
	sessions SessionResolver
	appender TurnAppender
	loader   HistoryLoader
	limits   LimitPolicy
}

func NewService(provider ai.Provider, sessions SessionResolver, appender TurnAppender, loader HistoryLoader, limits LimitPolicy) *Service {
	if limits == nil {
		limits = NoLimit{}
	}
	return &Service{
		provider: provider,
		sessions: sessions,
		appender: appender,
		loader:   loader,
		limits:   limits,
	}
}

// Ready reports whether the provider is configured.
func (s *Service) Ready() error {
	return s.provider.Validate()
}

// Exchange runs one turn: config check, identity, provider call, best-effort
// persistence and the limit flag. Store and limit failures are logged, not returned.
func (s *Service) Exchange(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	l := logger.With("request_id", req.RequestID)

	// 1) provider configured
	if err := s.Ready(); err != nil {
		return nil, err
	}

	// 2) identity, anonymous on any failure
	identity := s.resolveIdentity(ctx, req.Bearer, l)

	// 3) latest user message
	prompt, ok := LatestUserMessage(req.Messages)
	if !ok {
		return nil, ErrEmptyMessage
	}

	// 4) provider call
	reply, err := s.provider.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	res := &TurnResult{Content: reply, Identity: identity}

	// 5) persistence never fails the exchange
	if identity != "" && s.appender != nil {
		pair := []Turn{
			{Role: RoleUser, Content: prompt},
			{Role: RoleAssistant, Content: reply},
		}
		if err := s.appender.AppendTurns(ctx, identity, pair); err != nil {
			l.Error("persist turns failed", "identity", identity, "err", err)
		} else {
			res.Persisted = true
		}
	}

	// 6) limit flag
	reached, err := s.limits.LimitReached(ctx, limitKey(identity, req.ClientIP))
	if err != nil {
		l.Warn("limit policy failed", "identity", identity, "err", err)
	}
	res.LimitReached = reached && err == nil

	return res, nil
}

func (s *Service) History(ctx context.Context, identity string) ([]Turn, error) {
	if identity == "" {
		return nil, ErrNoIdentity
	}
	if s.loader == nil {
		return []Turn{}, nil
	}
	return s.loader.LoadHistory(ctx, identity)
}

func (s *Service) resolveIdentity(ctx context.Context, bearer string, l *log.Logger) string {
	if s.sessions == nil || strings.TrimSpace(bearer) == "" {
		return ""
	}
	identity, err := s.sessions.ResolveIdentity(ctx, bearer)
	if err != nil {
		l.Debug("session resolution failed, continuing anonymous", "err", err)
		return ""
	}
	return identity
}

// LatestUserMessage returns the content of the last user turn. Turns with an
// empty role count as user turns.
func LatestUserMessage(msgs []Turn) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		role := strings.TrimSpace(msgs[i].Role)
		if role != "" && role != RoleUser {
			continue
		}
		if strings.TrimSpace(msgs[i].Content) == "" {
			return "", false
		}
		return msgs[i].Content, true
	}
	return "", false
}

func limitKey(identity, clientIP string) string {
	if identity != "" {
		return identity
	}
	if clientIP == "" {
		clientIP = "unknown"
	}
	return "anon:" + clientIP
}
