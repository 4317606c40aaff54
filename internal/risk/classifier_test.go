package risk_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voiceguard-app/voiceguard/internal/config"
	"github.com/voiceguard-app/voiceguard/internal/risk"
)

// scriptedBackend answers each prompt from a queue and records what it saw.
type scriptedBackend struct {
	mu      sync.Mutex
	answers []answer
	calls   []backendCall
	done    chan struct{}
}

type answer struct {
	text string
	err  error
}

type backendCall struct {
	prompt  string
	history []risk.DialogueTurn
}

func newScriptedBackend(answers ...answer) *scriptedBackend {
	return &scriptedBackend{answers: answers, done: make(chan struct{}, 16)}
}

func (b *scriptedBackend) Ask(ctx context.Context, sessionID, prompt string, history []risk.DialogueTurn) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, backendCall{prompt: prompt, history: history})

	var a answer
	if len(b.answers) > 0 {
		a = b.answers[0]
		b.answers = b.answers[1:]
	} else {
		a = answer{text: "특이사항 없음"}
	}

	b.done <- struct{}{}

	return a.text, a.err
}

func (b *scriptedBackend) waitCalls(t *testing.T, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		select {
		case <-b.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("backend call %d did not happen", i+1)
		}
	}
	// Give the worker a moment to finish post-call bookkeeping.
	time.Sleep(20 * time.Millisecond)
}

func newTestClassifier(t *testing.T, backend risk.Backend) (*risk.Classifier, *risk.HistoryStore) {
	t.Helper()

	cfg := &config.Config{}
	cfg.ApplyDefaults()

	store, err := risk.NewHistoryStore(cfg.AI.HistoryCacheSize)
	require.NoError(t, err)

	classifier := risk.NewClassifier(zaptest.NewLogger(t), cfg, backend, store)
	classifier.Start(context.Background())
	t.Cleanup(classifier.Stop)

	return classifier, store
}

func TestClassifier_RecordsExchangeInHistory(t *testing.T) {
	backend := newScriptedBackend(answer{text: "특이사항 없음"})
	classifier, store := newTestClassifier(t, backend)

	classifier.Submit(risk.Segment{SessionID: "s1", Speaker: "대화자", Text: "안녕하세요"})
	backend.waitCalls(t, 1)

	turns := store.GetOrCreate("s1").Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, risk.RoleUser, turns[0].Role)
	assert.Equal(t, "[대화자] 안녕하세요", turns[0].Content)
	assert.Equal(t, risk.RoleAssistant, turns[1].Role)
	assert.Equal(t, "특이사항 없음", turns[1].Content)
}

func TestClassifier_PromptCarriesSpeakerAndText(t *testing.T) {
	backend := newScriptedBackend()
	classifier, _ := newTestClassifier(t, backend)

	classifier.Submit(risk.Segment{SessionID: "s1", Speaker: "대화자", Text: "지금 바로 송금하세요"})
	backend.waitCalls(t, 1)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.calls, 1)
	assert.Contains(t, backend.calls[0].prompt, `"지금 바로 송금하세요"`)
	assert.Contains(t, backend.calls[0].prompt, "[대화자]")
	assert.Contains(t, backend.calls[0].prompt, "보이스피싱")
}

func TestClassifier_LaterRequestsSeeEarlierExchanges(t *testing.T) {
	backend := newScriptedBackend(
		answer{text: "특이사항 없음"},
		answer{text: "특이사항 없음"},
	)
	classifier, _ := newTestClassifier(t, backend)

	classifier.Submit(risk.Segment{SessionID: "s1", Speaker: "대화자", Text: "첫 번째"})
	classifier.Submit(risk.Segment{SessionID: "s1", Speaker: "대화자", Text: "두 번째"})
	backend.waitCalls(t, 2)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.calls, 2)
	assert.Empty(t, backend.calls[0].history)
	require.Len(t, backend.calls[1].history, 2, "second request sees the first exchange")
	assert.Equal(t, "[대화자] 첫 번째", backend.calls[1].history[0].Content)
}

func TestClassifier_FailedRequestLeavesHistoryUntouched(t *testing.T) {
	backend := newScriptedBackend(
		answer{err: fmt.Errorf("backend down")},
		answer{text: "특이사항 없음"},
	)
	classifier, store := newTestClassifier(t, backend)

	classifier.Submit(risk.Segment{SessionID: "s1", Speaker: "대화자", Text: "첫 번째"})
	classifier.Submit(risk.Segment{SessionID: "s1", Speaker: "대화자", Text: "두 번째"})
	backend.waitCalls(t, 2)

	turns := store.GetOrCreate("s1").Snapshot()
	require.Len(t, turns, 2, "only the successful exchange is recorded")
	assert.Equal(t, "[대화자] 두 번째", turns[0].Content)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Empty(t, backend.calls[1].history, "failed exchange is not replayed as history")
}

func TestClassifier_WarningHandler(t *testing.T) {
	tests := map[string]struct {
		answer      string
		wantWarning bool
	}{
		"marker_phrase": {
			answer:      "보이스피싱 위험징후 포착. 전화를 끊으세요.",
			wantWarning: true,
		},
		"keyword_only": {
			answer:      "이 발언은 사기 수법과 유사합니다.",
			wantWarning: true,
		},
		"benign": {
			answer:      "특이사항 없음",
			wantWarning: false,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			backend := newScriptedBackend(answer{text: tt.answer})
			classifier, _ := newTestClassifier(t, backend)

			var (
				mu       sync.Mutex
				warnings []string
				segments []risk.Segment
			)
			classifier.SetWarningHandler(func(seg risk.Segment, answer string) {
				mu.Lock()
				defer mu.Unlock()
				warnings = append(warnings, answer)
				segments = append(segments, seg)
			})

			classifier.Submit(risk.Segment{SessionID: "s1", Speaker: "대화자00", Text: "테스트"})
			backend.waitCalls(t, 1)

			mu.Lock()
			defer mu.Unlock()
			if tt.wantWarning {
				require.Len(t, warnings, 1)
				assert.Equal(t, tt.answer, warnings[0])
				assert.Equal(t, "대화자00", segments[0].Speaker, "triggering segment rides along")
				assert.Equal(t, "테스트", segments[0].Text)
			} else {
				assert.Empty(t, warnings)
			}
		})
	}
}
