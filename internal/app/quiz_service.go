package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studyquiz/internal/domain"
	"studyquiz/internal/observability"
)

// Generation defaults applied when a request leaves them unset.
const (
	DefaultQuestionCount = 5
	DefaultDifficulty    = domain.DifficultyMedium
)

// Deps are the collaborators of QuizService. Sessions, Quizzes and Progress
// are required; the rest may be nil.
type Deps struct {
	Sessions SessionRepository
	Quizzes  QuizRepository
	Store    QuizStore
	Results  ResultStore
	Progress *ProgressTracker
	Source   QuestionSource
	Archive  MaterialArchive
	Feed     QuizFeed
	Persist  PersistOptions
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Now      func() time.Time
}

// QuizService contains the core quiz use cases.
type QuizService struct {
	sessions SessionRepository
	quizzes  QuizRepository
	store    QuizStore
	results  ResultStore
	progress *ProgressTracker
	source   QuestionSource
	archive  MaterialArchive
	feed     QuizFeed
	persist  PersistOptions
	log      *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewQuizService(deps Deps) *QuizService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &QuizService{
		sessions: deps.Sessions,
		quizzes:  deps.Quizzes,
		store:    deps.Store,
		results:  deps.Results,
		progress: deps.Progress,
		source:   deps.Source,
		archive:  deps.Archive,
		feed:     deps.Feed,
		persist:  deps.Persist,
		log:      logger,
		metrics:  deps.Metrics,
		now:      now,
	}
}

// Generate asks the question source for a quiz over the study material. A
// failing source starts nothing; no questions are substituted. For signed-in
// users the quiz is stored; if that fails the quiz is returned together with
// an error wrapping domain.ErrPersistenceFailed.
func (s *QuizService) Generate(ctx context.Context, userID string, req domain.GenerationRequest) (domain.Quiz, error) {
	if s.source == nil {
		return domain.Quiz{}, fmt.Errorf("%w: no question source configured", domain.ErrGenerationFailed)
	}
	if req.QuestionCount == 0 {
		req.QuestionCount = DefaultQuestionCount
	}
	if req.Difficulty == "" {
		req.Difficulty = DefaultDifficulty
	}
	if err := domain.ValidateRequest(req); err != nil {
		return domain.Quiz{}, err
	}

	quiz, err := s.source.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrGenerationFailed) {
			return domain.Quiz{}, err
		}
		return domain.Quiz{}, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}
	if err := domain.ValidateQuiz(quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}

	now := s.now()
	quiz.ID = uuid.NewString()
	quiz.UserID = userID
	quiz.Difficulty = req.Difficulty
	quiz.Completed = false
	quiz.Results = nil
	quiz.CreatedAt = now
	quiz.UpdatedAt = now
	if strings.TrimSpace(req.Title) != "" {
		quiz.Title = req.Title
	}

	if s.archive != nil {
		if err := s.archive.Store(ctx, quiz.ID, req.Content); err != nil {
			s.log.Warn("study material not archived", zap.String("quiz", quiz.ID), zap.Error(err))
		}
	}
	if userID != "" && s.store != nil {
		p := newPersister(s.persist, s.log, s.metrics)
		if err := p.do(ctx, "put_quiz", quiz.ID, func(ctx context.Context) error {
			return s.store.PutQuiz(ctx, quiz)
		}); err != nil {
			return quiz, err
		}
	}
	s.log.Info("quiz generated",
		zap.String("quiz", quiz.ID), zap.Int("questions", len(quiz.Questions)), zap.String("difficulty", quiz.Difficulty))
	return quiz, nil
}

// Start opens the session of userID on a stored quiz, resuming from a fresh
// progress snapshot when one exists. A signed-in user gets the live session
// back unless it has been idle past the staleness window, in which case it is
// ended and a new one opened. The caller follows the returned session and
// must Leave it when done.
func (s *QuizService) Start(ctx context.Context, userID, quizID string) (*Session, error) {
	if userID != "" {
		key := domain.ProgressKey(userID, quizID)
		if live, ok := s.sessions.Get(key); ok {
			if s.now().Sub(live.LastActivity()) <= s.staleAfter() && live.join() {
				return live, nil
			}
			s.drop(live)
		}
	}

	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	var snapshot *domain.ProgressSnapshot
	if s.progress != nil {
		snapshot, err = s.progress.Load(ctx, userID, quizID)
		if err != nil {
			// resume is best-effort; start from scratch
			s.log.Warn("progress not loaded", zap.String("quiz", quizID), zap.Error(err))
		}
	}
	return s.open(userID, quiz, snapshot)
}

// StartEphemeral opens a session on a quiz that is not read from the store,
// such as an unsaved quiz of an anonymous user. The caller must Leave it.
func (s *QuizService) StartEphemeral(_ context.Context, userID string, quiz domain.Quiz) (*Session, error) {
	return s.open(userID, quiz, nil)
}

// Remediate derives a practice quiz from the incorrect answers of a completed
// session and opens a fresh session on it. The caller must Leave it.
func (s *QuizService) Remediate(ctx context.Context, parent *Session) (*Session, error) {
	quiz, err := parent.DeriveRemediationQuiz()
	if err != nil {
		return nil, err
	}
	userID := parent.UserID()
	if userID != "" && s.store != nil {
		p := newPersister(s.persist, s.log, s.metrics)
		if err := p.do(ctx, "put_quiz", quiz.ID, func(ctx context.Context) error {
			return s.store.PutQuiz(ctx, quiz)
		}); err != nil {
			s.log.Warn("practice quiz not stored", zap.String("quiz", quiz.ID), zap.Error(err))
		}
	}
	return s.open(userID, quiz, nil)
}

func (s *QuizService) open(userID string, quiz domain.Quiz, snapshot *domain.ProgressSnapshot) (*Session, error) {
	fresh := NewSession(SessionConfig{
		UserID:   userID,
		Quiz:     quiz,
		Progress: s.progress,
		Results:  s.results,
		Quizzes:  s.store,
		Persist:  s.persist,
		Now:      s.now,
		Logger:   s.log,
		Metrics:  s.metrics,
	})
	if err := fresh.Begin(snapshot); err != nil {
		return nil, err
	}
	fresh.join()

	for {
		session, existing := s.sessions.GetOrCreate(fresh.Key(), func() *Session { return fresh })
		if !existing {
			break
		}
		if session.join() {
			return session, nil
		}
		// closed by its last follower and not yet unregistered
		s.sessions.Delete(session.Key(), session)
	}
	session := fresh
	if s.feed != nil && quiz.ID != "" {
		watchCtx, cancel := context.WithCancel(context.Background())
		session.setStopWatch(cancel)
		go func() {
			if err := session.Watch(watchCtx, s.feed); err != nil {
				s.log.Warn("quiz feed unavailable", zap.String("quiz", quiz.ID), zap.Error(err))
			}
		}()
	}
	s.log.Info("session started",
		zap.String("session", session.Key()), zap.String("state", session.State().String()))
	return session, nil
}

// Session returns a live session by key.
func (s *QuizService) Session(key string) (*Session, error) {
	session, ok := s.sessions.Get(key)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Leave drops one follower of a session. The session ends when its last
// follower leaves.
func (s *QuizService) Leave(session *Session) {
	if session.leave() {
		s.retire(session)
	}
}

// End ends a session whatever the number of followers.
func (s *QuizService) End(key string) {
	session, ok := s.sessions.Get(key)
	if !ok {
		return
	}
	s.drop(session)
}

func (s *QuizService) drop(session *Session) {
	session.close()
	s.retire(session)
}

// retire writes the last progress of a closed session and unregisters it.
func (s *QuizService) retire(session *Session) {
	if err := session.Flush(context.Background()); err != nil {
		s.log.Warn("progress not saved on session end", zap.String("session", session.Key()), zap.Error(err))
	}
	s.sessions.Delete(session.Key(), session)
	s.log.Info("session ended", zap.String("session", session.Key()))
}

func (s *QuizService) staleAfter() time.Duration {
	if s.progress != nil {
		return s.progress.StaleAfter()
	}
	return DefaultStaleAfter
}

// History returns the user's past results, newest first.
func (s *QuizService) History(ctx context.Context, userID string, limit int) ([]domain.QuizResult, error) {
	if userID == "" || s.results == nil {
		return nil, nil
	}
	results, err := s.results.ListResults(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list results: %v", domain.ErrPersistenceFailed, err)
	}
	return results, nil
}

// Stats summarizes the user's quizzes for the dashboard.
func (s *QuizService) Stats(ctx context.Context, userID string) (domain.Stats, error) {
	if userID == "" || s.store == nil {
		return domain.Stats{}, nil
	}
	quizzes, err := s.store.ListQuizzes(ctx, userID)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("%w: list quizzes: %v", domain.ErrPersistenceFailed, err)
	}
	return ComputeStats(quizzes), nil
}
