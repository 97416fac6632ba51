package clarify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tbourn/stelgent-backend/internal/llm"
)

// Verdict sources.
const (
	SourceHeuristic = "heuristic"
	SourceModel     = "model"
)

const (
	classifierSystemPrompt = "You are a concise classifier."
	classifierMaxTokens    = 300
)

var errInconclusive = errors.New("clarify: classifier reply is inconclusive")

// Classifier asks a language model whether a request needs clarification.
// Any call failure, malformed reply or inconclusive answer yields the
// Heuristic verdict for the same input instead.
type Classifier struct {
	completer  llm.Completer
	model      string
	maxRetries int
}

// NewClassifier returns a Classifier using c. An empty model uses the
// completer's default.
func NewClassifier(c llm.Completer, model string, maxRetries int) *Classifier {
	return &Classifier{completer: c, model: model, maxRetries: maxRetries}
}

// Input is one classification request.
type Input struct {
	// Text is every user message of the project joined by newlines.
	Text string
	// Answered fields are treated as satisfied by both the model and the fallback.
	Answered []Field
	// APIKey optionally overrides the server completion key.
	APIKey string
}

// Result is a Verdict plus where it came from.
type Result struct {
	Verdict
	Source string
}

// Classify returns the model's verdict for in, or the Heuristic's when the
// model cannot provide one. A nil Classifier always uses the Heuristic.
func (c *Classifier) Classify(ctx context.Context, in Input) Result {
	if c == nil || c.completer == nil {
		return Result{Verdict: Evaluate(in.Text, in.Answered...), Source: SourceHeuristic}
	}
	v, err := c.ask(ctx, in)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("clarification classifier failed, using heuristic")
		return Result{Verdict: Evaluate(in.Text, in.Answered...), Source: SourceHeuristic}
	}
	return Result{Verdict: v, Source: SourceModel}
}

func (c *Classifier) ask(ctx context.Context, in Input) (Verdict, error) {
	reply, err := c.completer.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: classifierSystemPrompt},
			{Role: llm.RoleUser, Content: classifierPrompt(in.Text)},
		},
		Model:       c.model,
		MaxTokens:   classifierMaxTokens,
		Temperature: llm.Float32(0),
		MaxRetries:  c.maxRetries,
		APIKey:      in.APIKey,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("classify: %w", err)
	}
	return parseReply(reply, in.Answered)
}

func classifierPrompt(text string) string {
	return "You will receive a user request to create a website.\n" +
		"Return a JSON object with keys: needs_clarify (true/false), missing_field (one of pages, theme, platform, features, general or null), question (a single short question to ask the user, or null).\n" +
		"Example output: {\"needs_clarify\": true, \"missing_field\": \"pages\", \"question\": \"Which pages do you want?\"}\n\n" +
		"User request:\n" + text + "\n\nRespond ONLY with the JSON object."
}

type classifierReply struct {
	NeedsClarify *bool   `json:"needs_clarify"`
	MissingField *string `json:"missing_field"`
	Question     *string `json:"question"`
}

// parseReply decodes the first '{' .. last '}' span of reply.
func parseReply(reply string, answered []Field) (Verdict, error) {
	reply = strings.TrimSpace(reply)
	if start, end := strings.Index(reply, "{"), strings.LastIndex(reply, "}"); start >= 0 && end > start {
		reply = reply[start : end+1]
	}

	var r classifierReply
	if err := json.Unmarshal([]byte(reply), &r); err != nil {
		return Verdict{}, fmt.Errorf("classify: decode reply: %w", err)
	}
	if r.NeedsClarify == nil {
		return Verdict{}, errInconclusive
	}
	if !*r.NeedsClarify {
		return Verdict{}, nil
	}

	field := FieldGeneral
	if r.MissingField != nil {
		if f, ok := ParseField(*r.MissingField); ok {
			field = f
		}
	}
	for _, a := range answered {
		if a == field {
			return Verdict{}, fmt.Errorf("%w: %q was already answered", errInconclusive, field)
		}
	}

	q := ""
	if r.Question != nil {
		q = strings.TrimSpace(*r.Question)
	}
	if q == "" {
		q = Question(field)
	}
	return Verdict{Needs: true, Field: field, Question: q}, nil
}
