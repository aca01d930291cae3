package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studyquiz/internal/domain"
	"studyquiz/internal/observability"
)

// SessionState is the lifecycle position of a quiz attempt.
type SessionState int

const (
	StateLoading SessionState = iota
	StateInProgress
	StateCompleted
	StateReviewingResults
)

func (s SessionState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateInProgress:
		return "inProgress"
	case StateCompleted:
		return "completed"
	case StateReviewingResults:
		return "reviewingResults"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// UpdateOutcome tells how a quiz change notification was applied.
type UpdateOutcome int

const (
	UpdateIgnored UpdateOutcome = iota
	UpdateMetadata
	UpdateReplaced
)

// RemediationTitlePrefix is prepended to the title of derived practice quizzes.
const RemediationTitlePrefix = "Practice Quiz: "

// SessionConfig wires a session to its collaborators. Every store is optional.
type SessionConfig struct {
	Key      string
	UserID   string
	Quiz     domain.Quiz
	Progress *ProgressTracker
	Results  ResultStore
	Quizzes  QuizStore
	Persist  PersistOptions
	Now      func() time.Time
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// Submission is the immediate feedback for a recorded answer.
type Submission struct {
	Index       int    `json:"questionIndex"`
	Correct     bool   `json:"isCorrect"`
	Explanation string `json:"explanation,omitempty"`
	Completed   bool   `json:"completed"`
}

// SessionView is a read-only snapshot pushed to subscribers.
type SessionView struct {
	Key       string                `json:"key"`
	QuizID    string                `json:"quizId,omitempty"`
	Title     string                `json:"title"`
	State     string                `json:"state"`
	Cursor    int                   `json:"currentQuestionIndex"`
	Total     int                   `json:"totalQuestions"`
	Answers   []domain.AnswerRecord `json:"answers"`
	Revision  time.Time             `json:"quizRevision"`
	SaveError string                `json:"saveError,omitempty"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// Session drives one learner through one quiz.
type Session struct {
	key      string
	userID   string
	progress *ProgressTracker
	results  ResultStore
	quizzes  QuizStore
	persist  persister
	now      func() time.Time
	log      *zap.Logger
	metrics  *observability.Metrics

	mu           sync.RWMutex
	quiz         domain.Quiz
	state        SessionState
	ledger       *Ledger
	cursor       int
	startedAt    time.Time
	lastMutation time.Time
	version      uint64
	result       *domain.QuizResult
	resultSaved  bool
	quizMarked   bool
	subscribers  map[chan SessionView]struct{}
	stopWatch    func()
	followers    int
	closed       bool
	saveErr      error

	// saves wakes the progress writer and closing stops it.
	saves      chan struct{}
	closing    chan struct{}
	writerOnce sync.Once
	// writeMu serializes progress writes; savedVersion is the newest version written.
	writeMu      sync.Mutex
	savedVersion uint64
	resultMu     sync.Mutex
}

func NewSession(cfg SessionConfig) *Session {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	key := cfg.Key
	if key == "" {
		key = sessionKey(cfg.UserID, cfg.Quiz.ID)
	}
	return &Session{
		key:         key,
		userID:      cfg.UserID,
		progress:    cfg.Progress,
		results:     cfg.Results,
		quizzes:     cfg.Quizzes,
		persist:     newPersister(cfg.Persist, logger, cfg.Metrics),
		now:         now,
		log:         logger.With(zap.String("session", key)),
		metrics:     cfg.Metrics,
		quiz:        cfg.Quiz,
		state:       StateLoading,
		ledger:      NewLedger(cfg.Quiz.Questions, now),
		startedAt:   now(),
		subscribers: make(map[chan SessionView]struct{}),
		saves:       make(chan struct{}, 1),
		closing:     make(chan struct{}),
	}
}

// sessionKey is the progress key for signed-in users and a random key otherwise.
func sessionKey(userID, quizID string) string {
	if userID != "" && quizID != "" {
		return domain.ProgressKey(userID, quizID)
	}
	return "guest_" + uuid.NewString()
}

func (s *Session) Key() string    { return s.key }
func (s *Session) UserID() string { return s.userID }

func (s *Session) Quiz() domain.Quiz {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quiz
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Cursor() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// LastActivity is the time of the last answer or move, or the start time
// when there was none.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastMutation.IsZero() {
		return s.startedAt
	}
	return s.lastMutation
}

// Records returns the ledger entries in question order.
func (s *Session) Records() []domain.AnswerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Records()
}

// Begin leaves Loading once the question set is acquired, restoring the
// snapshot if one is given. A restored complete ledger is evaluated and the
// session goes straight to Completed.
func (s *Session) Begin(snapshot *domain.ProgressSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoading {
		return fmt.Errorf("%w: begin from %s", domain.ErrInvalidTransition, s.state)
	}
	if err := domain.ValidateQuiz(s.quiz); err != nil {
		return err
	}
	total := len(s.quiz.Questions)
	if snapshot != nil {
		s.ledger.Restore(snapshot.Answers)
		s.cursor = clamp(snapshot.CurrentQuestionIndex, total)
	}
	s.state = StateInProgress
	if s.ledger.IsComplete(total) {
		s.ledger.EvaluateAll()
		s.state = StateCompleted
	}
	s.metrics.SessionStarted()
	s.broadcastLocked()
	return nil
}

// SubmitAnswer records the answer for question index. A question can be
// answered once: resubmitting the same value is a no-op, a different value is
// rejected with domain.ErrAlreadyAnswered. Progress is saved in the
// background; a failed save is reported through SessionView.SaveError.
func (s *Session) SubmitAnswer(_ context.Context, index int, answer domain.Answer) (Submission, error) {
	s.mu.Lock()
	if s.state != StateInProgress {
		state := s.state
		s.mu.Unlock()
		return Submission{}, fmt.Errorf("%w: answer in %s", domain.ErrInvalidTransition, state)
	}
	if index < 0 || index >= len(s.quiz.Questions) {
		s.mu.Unlock()
		return Submission{}, fmt.Errorf("%w: %d", domain.ErrQuestionOutOfRange, index)
	}
	question := s.quiz.Questions[index]
	feedback := Submission{Index: index, Explanation: question.Explanation}

	if existing, ok := s.ledger.Get(index); ok {
		s.mu.Unlock()
		if !existing.Answer.Equal(answer) {
			return Submission{}, fmt.Errorf("%w: question %d", domain.ErrAlreadyAnswered, index)
		}
		feedback.Correct = Evaluate(question, answer)
		return feedback, nil
	}
	if err := CheckSubmission(question, answer); err != nil {
		s.mu.Unlock()
		return Submission{}, err
	}
	if err := s.ledger.Record(index, answer); err != nil {
		s.mu.Unlock()
		return Submission{}, err
	}
	feedback.Correct = Evaluate(question, answer)
	if s.ledger.IsComplete(len(s.quiz.Questions)) {
		s.ledger.EvaluateAll()
		s.state = StateCompleted
		feedback.Completed = true
	}
	s.touchLocked()
	s.mu.Unlock()
	return feedback, nil
}

// Next moves the cursor forward. At the last question it is a no-op. It never
// waits for a progress save.
func (s *Session) Next(ctx context.Context) (int, error) {
	return s.move(ctx, 1)
}

// Previous moves the cursor back. At the first question it is a no-op.
func (s *Session) Previous(ctx context.Context) (int, error) {
	return s.move(ctx, -1)
}

func (s *Session) move(_ context.Context, delta int) (int, error) {
	s.mu.Lock()
	if s.state == StateLoading {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: navigate while loading", domain.ErrInvalidTransition)
	}
	target := s.cursor + delta
	if target < 0 || target >= len(s.quiz.Questions) {
		cursor := s.cursor
		s.mu.Unlock()
		return cursor, nil
	}
	s.cursor = target
	s.touchLocked()
	s.mu.Unlock()
	return target, nil
}

// touchLocked marks a local mutation, notifies subscribers and wakes the
// progress writer.
func (s *Session) touchLocked() {
	s.version++
	s.lastMutation = s.now()
	s.broadcastLocked()

	if s.progress == nil || s.userID == "" || s.closed {
		return
	}
	s.writerOnce.Do(func() { go s.writeLoop() })
	select {
	case s.saves <- struct{}{}:
	default:
		// a wake-up is already pending and will pick up this version
	}
}

// writeLoop saves progress until the session closes. Wake-ups coalesce, so a
// burst of changes costs one write of the newest state.
func (s *Session) writeLoop() {
	for {
		select {
		case <-s.closing:
			return
		case <-s.saves:
			_ = s.Flush(context.Background())
		}
	}
}

// Flush writes the newest progress unless an earlier write already covered
// it. A failure is kept in the session view until a later write succeeds.
// The write is detached from ctx cancellation.
func (s *Session) Flush(ctx context.Context) error {
	if s.progress == nil || s.userID == "" {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	version := s.version
	records := s.ledger.Records()
	cursor := s.cursor
	quizID := s.quiz.ID
	s.mu.RUnlock()

	if version <= s.savedVersion {
		return nil
	}
	err := s.progress.Save(context.WithoutCancel(ctx), s.userID, quizID, records, cursor)

	s.mu.Lock()
	defer s.mu.Unlock()
	changed := (err == nil) != (s.saveErr == nil)
	if err != nil {
		s.log.Warn("progress not saved", zap.Uint64("version", version), zap.Error(err))
		s.saveErr = err
	} else {
		s.savedVersion = version
		s.saveErr = nil
	}
	if changed {
		s.broadcastLocked()
	}
	return err
}

// FinalizeAndSummarize computes the result of a complete attempt and
// persists it. The result is computed once; later calls return it again and
// retry any persistence that failed before. The result is returned even when
// the error wraps domain.ErrPersistenceFailed.
func (s *Session) FinalizeAndSummarize(ctx context.Context) (domain.QuizResult, error) {
	s.mu.Lock()
	switch s.state {
	case StateLoading:
		s.mu.Unlock()
		return domain.QuizResult{}, fmt.Errorf("%w: finalize while loading", domain.ErrInvalidTransition)
	case StateInProgress:
		if !s.ledger.IsComplete(len(s.quiz.Questions)) {
			s.mu.Unlock()
			return domain.QuizResult{}, domain.ErrQuizIncomplete
		}
		s.ledger.EvaluateAll()
		s.state = StateCompleted
	}
	if s.result == nil {
		s.result = s.summarizeLocked()
		s.metrics.SessionCompleted()
		s.broadcastLocked()
	}
	result := *s.result
	s.mu.Unlock()

	return result, s.persistResult(context.WithoutCancel(ctx), result)
}

func (s *Session) summarizeLocked() *domain.QuizResult {
	records := s.ledger.EvaluateAll()
	outcomes := make([]domain.QuestionOutcome, 0, len(records))
	score := 0
	for _, rec := range records {
		correct := rec.Correct != nil && *rec.Correct
		if correct {
			score++
		}
		outcomes = append(outcomes, domain.QuestionOutcome{QuestionIndex: rec.QuestionIndex, Correct: correct})
	}
	now := s.now()
	return &domain.QuizResult{
		ID:             uuid.NewString(),
		UserID:         s.userID,
		QuizID:         s.quiz.ID,
		Title:          s.quiz.Title,
		Score:          score,
		TotalQuestions: len(s.quiz.Questions),
		Answers:        outcomes,
		TimeSpent:      int64(now.Sub(s.startedAt) / time.Second),
		CreatedAt:      now,
	}
}

// persistResult appends the result and marks the quiz completed. Steps that
// already succeeded are not repeated.
func (s *Session) persistResult(ctx context.Context, result domain.QuizResult) error {
	if s.userID == "" {
		return nil
	}
	s.resultMu.Lock()
	defer s.resultMu.Unlock()

	s.mu.RLock()
	resultSaved, quizMarked := s.resultSaved, s.quizMarked
	s.mu.RUnlock()

	var firstErr error
	if !resultSaved && s.results != nil {
		err := s.persist.do(ctx, "append_result", result.ID, func(ctx context.Context) error {
			return s.results.AppendResult(ctx, result)
		})
		if err == nil {
			resultSaved = true
		} else {
			firstErr = err
		}
	}
	if !quizMarked && s.quizzes != nil && result.QuizID != "" {
		err := s.persist.do(ctx, "mark_completed", result.QuizID, func(ctx context.Context) error {
			return s.quizzes.MarkCompleted(ctx, result.QuizID, result)
		})
		if err == nil {
			quizMarked = true
		} else if firstErr == nil {
			firstErr = err
		}
	}

	s.mu.Lock()
	s.resultSaved = resultSaved || s.results == nil
	s.quizMarked = quizMarked || s.quizzes == nil || result.QuizID == ""
	s.mu.Unlock()

	if firstErr != nil {
		s.log.Warn("result not persisted", zap.String("result", result.ID), zap.Error(firstErr))
	}
	return firstErr
}

// Result returns the finalized result, if any.
func (s *Session) Result() (domain.QuizResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return domain.QuizResult{}, false
	}
	return *s.result, true
}

// DeriveRemediationQuiz builds a new quiz holding exactly the questions
// answered incorrectly, in their original order, with a fresh identity.
func (s *Session) DeriveRemediationQuiz() (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCompleted && s.state != StateReviewingResults {
		return domain.Quiz{}, fmt.Errorf("%w: remediate in %s", domain.ErrInvalidTransition, s.state)
	}
	var wrong []domain.Question
	for _, rec := range s.ledger.EvaluateAll() {
		if rec.Correct != nil && !*rec.Correct {
			wrong = append(wrong, s.quiz.Questions[rec.QuestionIndex])
		}
	}
	if len(wrong) == 0 {
		return domain.Quiz{}, domain.ErrNoRemediationNeeded
	}
	s.state = StateReviewingResults
	s.broadcastLocked()

	now := s.now()
	return domain.Quiz{
		ID:         uuid.NewString(),
		UserID:     s.userID,
		Title:      RemediationTitlePrefix + s.quiz.Title,
		Questions:  wrong,
		Difficulty: s.quiz.Difficulty,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ApplyQuizUpdate applies a full quiz document delivered by the store, in
// delivery order. Notifications for another quiz, invalid documents, and
// documents older than the revision already held are ignored. Revisions are
// compared only with each other since both come from the store. The question
// set is replaced only while no answer has been recorded; otherwise only
// metadata is refreshed.
func (s *Session) ApplyQuizUpdate(update domain.Quiz) UpdateOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.ID == "" || update.ID != s.quiz.ID {
		return UpdateIgnored
	}
	if update.UpdatedAt.Before(s.quiz.UpdatedAt) {
		s.log.Debug("ignoring stale quiz update",
			zap.Time("updatedAt", update.UpdatedAt), zap.Time("revision", s.quiz.UpdatedAt))
		return UpdateIgnored
	}
	if err := domain.ValidateQuiz(update); err != nil {
		s.log.Warn("ignoring invalid quiz update", zap.Error(err))
		return UpdateIgnored
	}

	outcome := UpdateMetadata
	if s.state == StateInProgress && s.ledger.Len() == 0 {
		s.quiz.Questions = update.Questions
		s.ledger = NewLedger(update.Questions, s.now)
		s.cursor = clamp(s.cursor, len(update.Questions))
		outcome = UpdateReplaced
	}
	s.quiz.Title = update.Title
	s.quiz.Difficulty = update.Difficulty
	s.quiz.Completed = update.Completed
	s.quiz.Results = update.Results
	s.quiz.UpdatedAt = update.UpdatedAt
	s.broadcastLocked()
	return outcome
}

// Watch applies feed notifications until ctx is done or the feed closes.
func (s *Session) Watch(ctx context.Context, feed QuizFeed) error {
	quizID := s.Quiz().ID
	updates, cancel, err := feed.Subscribe(ctx, quizID)
	if err != nil {
		return err
	}
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			s.ApplyQuizUpdate(update)
		}
	}
}

// Subscribe returns a channel of session views starting with the current one.
// The channel of a closed session is already closed. The caller must invoke
// the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan SessionView, func()) {
	ch := make(chan SessionView, 8)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	// the buffer is empty, so this cannot block while holding the lock
	ch <- s.viewLocked()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// View returns the current session view.
func (s *Session) View() SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewLocked()
}

func (s *Session) broadcastLocked() {
	view := s.viewLocked()
	for ch := range s.subscribers {
		select {
		case ch <- view:
		default:
			// slow subscriber: drop its oldest view
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
}

func (s *Session) viewLocked() SessionView {
	return SessionView{
		Key:       s.key,
		QuizID:    s.quiz.ID,
		Title:     s.quiz.Title,
		State:     s.state.String(),
		Cursor:    s.cursor,
		Total:     len(s.quiz.Questions),
		Answers:   s.ledger.Records(),
		Revision:  s.quiz.UpdatedAt,
		SaveError: s.saveErrorLocked(),
		UpdatedAt: s.now(),
	}
}

func (s *Session) saveErrorLocked() string {
	if s.saveErr == nil {
		return ""
	}
	return s.saveErr.Error()
}

// join adds a follower. It fails once the session is closed.
func (s *Session) join() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.followers++
	return true
}

// leave drops a follower and closes the session when it was the last one.
// It reports whether the session was closed by this call.
func (s *Session) leave() bool {
	s.mu.Lock()
	if s.followers > 0 {
		s.followers--
	}
	if s.followers > 0 || s.closed {
		s.mu.Unlock()
		return false
	}
	stop := s.shutdownLocked()
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	return true
}

// close stops the feed watcher and the progress writer and releases
// subscribers, whatever the number of followers.
func (s *Session) close() {
	s.mu.Lock()
	stop := s.shutdownLocked()
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// shutdownLocked marks the session closed and returns the watcher's stop
// function, which must be called without holding mu.
func (s *Session) shutdownLocked() func() {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.closing)
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	stop := s.stopWatch
	s.stopWatch = nil
	return stop
}

func (s *Session) setStopWatch(stop func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stop()
		return
	}
	s.stopWatch = stop
	s.mu.Unlock()
}

func clamp(i, total int) int {
	if i < 0 || total == 0 {
		return 0
	}
	if i >= total {
		return total - 1
	}
	return i
}
