package risk

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voiceguard-app/voiceguard/internal/config"
)

// promptTemplate frames each transcribed utterance for the model. The model
// must lead risky answers with the alert marker so downstream matching stays
// trivial, and keep answers to three lines for the call overlay.
const promptTemplate = `당신은 보이스피싱 예방 전문가입니다. 아래는 통화 중 [%s]의 발언입니다.

"%s"

이 발언에 기관 사칭, 금전 요구, 개인정보 요구, 긴급 압박 등 보이스피싱 위험징후가 있는지 판단하세요.
위험징후가 있으면 답변을 반드시 "보이스피싱 위험징후 포착"으로 시작하고, [%s]에게 필요한 행동 가이드를 제시하세요.
위험징후가 없으면 "특이사항 없음"이라고만 답하세요.
답변은 3줄 이내로 작성하세요.`

// warningPattern matches answers that carry a risk signal even when the
// model skips the exact marker phrase.
var warningPattern = regexp.MustCompile(`경고|주의|위험|사기`)

// Segment is one transcribed utterance queued for classification.
type Segment struct {
	SessionID string
	Speaker   string
	Text      string
}

// Backend answers one classification prompt given the session's dialogue
// history.
type Backend interface {
	Ask(ctx context.Context, sessionID, prompt string, history []DialogueTurn) (string, error)
}

// Classifier runs LLM risk classification over transcribed segments. A
// single worker drains the queue so each request sees every earlier
// exchange of its session in the history, in order.
type Classifier struct {
	logger  *zap.Logger
	backend Backend
	store   *HistoryStore
	timeout time.Duration

	queue  chan Segment
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	onWarning func(seg Segment, answer string)
}

// NewClassifier creates a classifier with an idle worker. Start launches it.
func NewClassifier(logger *zap.Logger, cfg *config.Config, backend Backend, store *HistoryStore) *Classifier {
	return &Classifier{
		logger:  logger,
		backend: backend,
		store:   store,
		timeout: time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
		queue:   make(chan Segment, 64),
	}
}

// SetWarningHandler attaches the callback invoked for each risky answer,
// together with the segment that triggered it.
func (c *Classifier) SetWarningHandler(fn func(seg Segment, answer string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onWarning = fn
}

// Start launches the classification worker, which runs until Stop
// regardless of the caller's context.
func (c *Classifier) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go c.worker(workerCtx)
}

// Stop cancels the worker and waits for it to exit. Queued segments that
// have not been picked up are discarded.
func (c *Classifier) Stop() {
	if c.cancel == nil {
		return
	}

	c.cancel()
	c.wg.Wait()
	c.cancel = nil
}

// Submit enqueues one segment without blocking the caller. When the queue
// is full the segment is dropped; transcription must never stall on a slow
// model.
func (c *Classifier) Submit(seg Segment) {
	select {
	case c.queue <- seg:
	default:
		c.logger.Warn("Classification queue full, dropping segment",
			zap.String("session_id", seg.SessionID),
			zap.String("speaker", seg.Speaker))
	}
}

func (c *Classifier) worker(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case seg := <-c.queue:
			c.classify(ctx, seg)
		}
	}
}

// classify runs one segment through the backend. A failed request leaves
// the session history untouched so later exchanges are not polluted by a
// half-recorded turn.
func (c *Classifier) classify(ctx context.Context, seg Segment) {
	prompt := fmt.Sprintf(promptTemplate, seg.Speaker, seg.Text, seg.Speaker)
	query := fmt.Sprintf("[%s] %s", seg.Speaker, seg.Text)

	history := c.store.GetOrCreate(seg.SessionID)

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	answer, err := c.backend.Ask(reqCtx, seg.SessionID, prompt, history.Snapshot())
	cancel()

	if err != nil {
		c.logger.Error("Risk classification failed",
			zap.String("session_id", seg.SessionID),
			zap.Error(err))

		return
	}

	history.AppendExchange(query, answer)

	c.logger.Debug("Segment classified",
		zap.String("session_id", seg.SessionID),
		zap.String("speaker", seg.Speaker),
		zap.Int("history_turns", history.Len()))

	if c.isWarning(answer) {
		c.mu.Lock()
		onWarning := c.onWarning
		c.mu.Unlock()

		if onWarning != nil {
			onWarning(seg, answer)
		}
	}
}

// isWarning reports whether an answer signals phishing risk: either the
// mandated marker phrase or any of the warning keywords.
func (c *Classifier) isWarning(answer string) bool {
	return strings.Contains(answer, "보이스피싱 위험징후 포착") || warningPattern.MatchString(answer)
}
