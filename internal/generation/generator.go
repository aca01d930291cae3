package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"studyquiz/internal/domain"
	"studyquiz/internal/observability"
)

// Completer sends one prompt to a language model and returns its raw reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Generator builds a quiz one question at a time through a Completer.
type Generator struct {
	completer Completer
	limiter   *rate.Limiter
	log       *zap.Logger
	metrics   *observability.Metrics
}

// NewGenerator throttles calls to perMinute requests; zero or less means
// unthrottled.
func NewGenerator(completer Completer, perMinute int, logger *zap.Logger, metrics *observability.Metrics) *Generator {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{completer: completer, limiter: limiter, log: logger, metrics: metrics}
}

// Generate asks for req.QuestionCount questions, cycling through req.Types
// (multiple choice when empty). Any unusable reply fails the whole quiz.
func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.Quiz, error) {
	ctx, span := observability.Tracer().Start(ctx, "generate_quiz")
	span.SetAttributes(
		attribute.String("studyquiz.provider", g.completer.Name()),
		attribute.Int("studyquiz.questions", req.QuestionCount),
	)
	defer span.End()

	started := time.Now()
	quiz, err := g.generate(ctx, req)
	g.metrics.ObserveGeneration(g.completer.Name(), err, time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Quiz{}, err
	}
	return quiz, nil
}

func (g *Generator) generate(ctx context.Context, req domain.GenerationRequest) (domain.Quiz, error) {
	types := req.Types
	if len(types) == 0 {
		types = []domain.QuestionType{domain.TypeMultipleChoice}
	}

	questions := make([]domain.Question, 0, req.QuestionCount)
	for i := 0; i < req.QuestionCount; i++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return domain.Quiz{}, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
		}
		qtype := types[i%len(types)]
		reply, err := g.completer.Complete(ctx, BuildPrompt(req.Content, req.Difficulty, qtype, i, req.QuestionCount))
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("%w: question %d: %v", domain.ErrGenerationFailed, i+1, err)
		}
		q, err := ParseQuestion(reply, qtype)
		if err != nil {
			g.log.Warn("unusable question from model",
				zap.String("provider", g.completer.Name()), zap.Int("question", i+1), zap.Error(err))
			return domain.Quiz{}, fmt.Errorf("question %d: %w", i+1, err)
		}
		questions = append(questions, q)
		g.log.Debug("question generated", zap.Int("question", i+1), zap.Int("of", req.QuestionCount))
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = DeriveTitle(req.Content)
	}
	return domain.Quiz{Title: title, Questions: questions, Difficulty: req.Difficulty}, nil
}
