// Package services – ChatService
//
// This file implements the chat turn: the user message is stored first, then
// the accumulated request is checked for missing information. Either an
// assistant clarifying question is stored, or a completion is requested
// (served from the response cache when the exact inputs were seen before),
// parsed into file blocks, and reconciled against the project's files.
//
// Turns on the same project are serialized in-process. Cache writes and HTML
// re-linking are best-effort and reported as Outcomes on the TurnResult.
//
// Observability: every turn opens a span and feeds the chat_turns_total and
// chat_turn_duration_seconds collectors.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/stelgent-backend/internal/cache"
	"github.com/tbourn/stelgent-backend/internal/clarify"
	"github.com/tbourn/stelgent-backend/internal/domain"
	"github.com/tbourn/stelgent-backend/internal/fileblock"
	"github.com/tbourn/stelgent-backend/internal/llm"
	"github.com/tbourn/stelgent-backend/internal/observability"
	"github.com/tbourn/stelgent-backend/internal/repo"
)

// CompletionCache is the slice of cache.Store used by a turn.
type CompletionCache interface {
	Get(ctx context.Context, fingerprint string) (cache.Entry, bool, error)
	Set(ctx context.Context, e cache.Entry) error
}

// TurnResult is the outcome of one chat turn. Exactly one of Clarify or a
// generated Response is meaningful.
type TurnResult struct {
	Clarify  bool
	Question string
	Field    string

	Response string
	NewFiles []domain.ProjectFile
	Cached   bool

	// Outcomes lists best-effort steps that failed.
	Outcomes []Outcome
}

// ChatService runs chat turns.
type ChatService struct {
	DB         *gorm.DB
	Classifier *clarify.Classifier
	Completer  llm.Completer
	Cache      CompletionCache
	Parser     fileblock.Parser

	// Completion parameters; zero values use the completer's defaults.
	Model       string
	MaxTokens   int
	Temperature *float32
	MaxRetries  int

	// Context bounds.
	HistoryLimit    int
	SnippetRunes    int
	MaxMessageRunes int

	locks projectLocks
	now   func() time.Time
}

// NewChatService constructs a ChatService with the default context bounds.
func NewChatService(db *gorm.DB, classifier *clarify.Classifier, completer llm.Completer, c CompletionCache) *ChatService {
	return &ChatService{
		DB:              db,
		Classifier:      classifier,
		Completer:       completer,
		Cache:           c,
		Parser:          fileblock.MarkerParser{},
		HistoryLimit:    12,
		SnippetRunes:    800,
		MaxMessageRunes: 8000,
	}
}

// Turn processes one user message for a project owned by userID.
//
// Validation and ownership errors are returned as-is before anything is
// stored. Once the user message is stored, any failure is reported as
// ErrGenerationFailed and the message stays in the history.
func (s *ChatService) Turn(ctx context.Context, userID, projectID, message string) (*TurnResult, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "Turn",
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(message) > s.MaxMessageRunes {
		return nil, ErrMessageTooLong
	}

	unlock := s.locks.lock(projectID)
	defer unlock()

	start := s.clock()
	if _, err := ownedProject(ctx, s.DB, userID, projectID); err != nil {
		return nil, err
	}
	user, err := repo.GetUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	apiKey := ""
	if user.HasOpenAIKey() {
		apiKey = strings.TrimSpace(*user.OpenAIAPIKey)
	}

	// History is read before the new message so the prompt shows prior turns only.
	history, err := repo.ListRecentMessages(ctx, s.DB, projectID, s.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if _, err := repo.AppendMessage(ctx, s.DB, projectID, domain.RoleUser, message, nil); err != nil {
		return nil, err
	}

	res, err := s.run(ctx, projectID, message, apiKey, history)
	observability.ChatTurnDuration.Observe(s.clock().Sub(start).Seconds())
	if err != nil {
		observability.ChatTurns.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		zerolog.Ctx(ctx).Error().Err(err).Str("project_id", projectID).Msg("chat turn failed")
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	switch {
	case res.Clarify:
		observability.ChatTurns.WithLabelValues("clarify").Inc()
	case res.Cached:
		observability.ChatTurns.WithLabelValues("cached").Inc()
	default:
		observability.ChatTurns.WithLabelValues("generated").Inc()
	}
	span.SetAttributes(
		attribute.Bool("turn.clarify", res.Clarify),
		attribute.Bool("turn.cached", res.Cached),
		attribute.Int("turn.new_files", len(res.NewFiles)),
	)
	if err := repo.TouchProject(ctx, s.DB, projectID); err != nil {
		res.Outcomes = append(res.Outcomes, Outcome{Step: StepTouchProject, Target: projectID, Err: err})
	}
	logOutcomes(zerolog.Ctx(ctx), res.Outcomes)
	return res, nil
}

func (s *ChatService) run(ctx context.Context, projectID, message, apiKey string, history []domain.ConversationMessage) (*TurnResult, error) {
	verdict, err := s.checkClarification(ctx, projectID, apiKey)
	if err != nil {
		return nil, err
	}
	if verdict.Needs {
		field := string(verdict.Field)
		if _, err := repo.AppendMessage(ctx, s.DB, projectID, domain.RoleAssistant, verdict.Question, &field); err != nil {
			return nil, err
		}
		return &TurnResult{Clarify: true, Question: verdict.Question, Field: field}, nil
	}
	return s.generate(ctx, projectID, message, apiKey, history)
}

// checkClarification evaluates every user message of the project. When the
// verdict repeats the field of the last clarifying question and the user has
// written since, that field counts as answered and the check runs again.
func (s *ChatService) checkClarification(ctx context.Context, projectID, apiKey string) (clarify.Verdict, error) {
	msgs, err := repo.ListUserMessages(ctx, s.DB, projectID)
	if err != nil {
		return clarify.Verdict{}, err
	}
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Content)
	}
	text := strings.Join(parts, "\n")

	v := s.verdict(ctx, text, apiKey)
	if !v.Needs {
		return v, nil
	}

	last, err := repo.LastClarification(ctx, s.DB, projectID)
	if errors.Is(err, repo.ErrNotFound) {
		return v, nil
	}
	if err != nil {
		return clarify.Verdict{}, err
	}
	if last.ClarifyField == nil || *last.ClarifyField != string(v.Field) || !answeredSince(msgs, last) {
		return v, nil
	}
	zerolog.Ctx(ctx).Debug().Str("field", string(v.Field)).Msg("clarify field already asked, treating as answered")
	return s.verdict(ctx, text, apiKey, v.Field), nil
}

func (s *ChatService) verdict(ctx context.Context, text, apiKey string, answered ...clarify.Field) clarify.Verdict {
	v := clarify.Evaluate(text, answered...)
	if !v.Needs {
		return v
	}
	return s.Classifier.Classify(ctx, clarify.Input{Text: text, Answered: answered, APIKey: apiKey}).Verdict
}

// answeredSince reports whether a user message was stored after m.
func answeredSince(userMsgs []domain.ConversationMessage, m *domain.ConversationMessage) bool {
	if len(userMsgs) == 0 {
		return false
	}
	return !userMsgs[len(userMsgs)-1].CreatedAt.Before(m.CreatedAt)
}

func (s *ChatService) generate(ctx context.Context, projectID, message, apiKey string, history []domain.ConversationMessage) (*TurnResult, error) {
	stored, err := repo.ListFiles(ctx, s.DB, projectID)
	if err != nil {
		return nil, err
	}
	files := make([]fileblock.File, 0, len(stored))
	for _, f := range stored {
		files = append(files, fileblock.File{Path: f.Path, Content: f.Content})
	}
	turns := make([]fileblock.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, fileblock.Turn{Role: m.Role, Content: m.Content})
	}

	system := fileblock.SystemPrompt(files, turns, s.SnippetRunes)
	fp := cache.Fingerprint(system, message, projectID)

	res := &TurnResult{}
	reply, hit := "", false
	if s.Cache != nil {
		e, ok, err := s.Cache.Get(ctx, fp)
		if err != nil {
			res.Outcomes = append(res.Outcomes, Outcome{Step: StepCacheRead, Target: fp, Err: err})
		}
		if ok {
			reply, hit = e.Response, true
		}
	}
	if !hit {
		reply, err = s.Completer.Complete(ctx, llm.Request{
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: system},
				{Role: llm.RoleUser, Content: fileblock.UserPrompt(message)},
			},
			Model:       s.Model,
			MaxTokens:   s.MaxTokens,
			Temperature: s.Temperature,
			MaxRetries:  s.MaxRetries,
			APIKey:      apiKey,
		})
		if err != nil {
			return nil, fmt.Errorf("completion: %w", err)
		}
	}
	res.Cached = hit

	parser := s.Parser
	if parser == nil {
		parser = fileblock.MarkerParser{}
	}
	parsed := parser.Parse(reply)
	for _, p := range parsed.Skipped {
		zerolog.Ctx(ctx).Warn().Str("path", p).Msg("skipped empty file block")
	}

	created, err := s.reconcile(ctx, projectID, parsed.Blocks)
	if err != nil {
		return nil, err
	}
	res.NewFiles = created
	res.Outcomes = append(res.Outcomes, relinkHTML(ctx, s.DB, projectID)...)

	if !hit && s.Cache != nil {
		entry := cache.Entry{Fingerprint: fp, ProjectID: projectID, Response: reply, Files: cachedFiles(parsed.Blocks)}
		if err := s.Cache.Set(ctx, entry); err != nil {
			res.Outcomes = append(res.Outcomes, Outcome{Step: StepCacheWrite, Target: fp, Err: err})
		}
	}

	res.Response = parsed.Explanation
	if _, err := repo.AppendMessage(ctx, s.DB, projectID, domain.RoleAssistant, res.Response, nil); err != nil {
		return nil, err
	}
	return res, nil
}

// reconcile applies blocks to the project's files in one transaction:
// existing paths are overwritten in place, new ones are inserted and
// returned in order of appearance.
func (s *ChatService) reconcile(ctx context.Context, projectID string, blocks []fileblock.Block) ([]domain.ProjectFile, error) {
	created := []domain.ProjectFile{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, b := range blocks {
			cur, err := repo.GetFileByPath(ctx, tx, projectID, b.Path)
			switch {
			case err == nil:
				if cur.Kind == domain.KindFile && cur.Content != b.Content {
					if err := repo.UpdateFileContent(ctx, tx, cur.ID, b.Content); err != nil {
						return err
					}
				}
			case errors.Is(err, repo.ErrNotFound):
				f, err := repo.CreateFile(ctx, tx, projectID, b.Path, b.Content, b.Kind)
				if err != nil {
					return fmt.Errorf("create %s: %w", b.Path, err)
				}
				created = append(created, *f)
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func cachedFiles(blocks []fileblock.Block) []domain.CachedFile {
	out := make([]domain.CachedFile, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, domain.CachedFile{Path: b.Path, Content: b.Content, Kind: b.Kind})
	}
	return out
}

func (s *ChatService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// projectLocks hands out one mutex per project id and drops it once no turn
// holds or waits for it.
type projectLocks struct {
	mu sync.Mutex
	m  map[string]*projectLock
}

type projectLock struct {
	mu   sync.Mutex
	refs int
}

func (l *projectLocks) lock(id string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*projectLock)
	}
	pl, ok := l.m[id]
	if !ok {
		pl = &projectLock{}
		l.m[id] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}
