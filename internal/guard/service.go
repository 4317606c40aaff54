// Package guard wires capture, streaming, transports, detection, and risk
// classification into one call-protection service.
package guard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voiceguard-app/voiceguard/internal/capture"
	"github.com/voiceguard-app/voiceguard/internal/config"
	"github.com/voiceguard-app/voiceguard/internal/detect"
	"github.com/voiceguard-app/voiceguard/internal/risk"
	"github.com/voiceguard-app/voiceguard/internal/rooms"
	"github.com/voiceguard-app/voiceguard/internal/stream"
	"github.com/voiceguard-app/voiceguard/internal/transport"
)

// Service orchestrates one user's protected call session: it joins rooms,
// runs capture and the flush cycles, and surfaces transcript lines, spoof
// alerts, and risk warnings through the event sink.
type Service struct {
	logger     *zap.Logger
	cfg        *config.Config
	engine     *capture.Engine
	viz        *capture.Visualizer
	mux        *stream.Multiplexer
	call       *transport.CallChannel
	analysis   *transport.AnalysisChannel
	aggregator *detect.SpoofAggregator
	classifier *risk.Classifier
	rooms      *rooms.Client
	sink       EventSink

	mu        sync.Mutex
	sessionID string
	roomID    string
}

// NewService assembles the pipeline. Capture frames fan out to the call
// buffer and the analysis self buffer; decoded inbound call audio lands in
// the analysis peer buffer; flushes are gated on capture being active.
func NewService(
	logger *zap.Logger,
	cfg *config.Config,
	engine *capture.Engine,
	viz *capture.Visualizer,
	mux *stream.Multiplexer,
	call *transport.CallChannel,
	analysis *transport.AnalysisChannel,
	aggregator *detect.SpoofAggregator,
	classifier *risk.Classifier,
	roomsClient *rooms.Client,
	sink EventSink,
) *Service {
	s := &Service{
		logger:     logger,
		cfg:        cfg,
		engine:     engine,
		viz:        viz,
		mux:        mux,
		call:       call,
		analysis:   analysis,
		aggregator: aggregator,
		classifier: classifier,
		rooms:      roomsClient,
		sink:       sink,
		sessionID:  uuid.NewString(),
	}

	engine.AddSink(mux.CallBuffer())
	engine.AddSink(mux.AnalysisSelfBuffer())
	call.SetPeerSink(mux.AnalysisPeerBuffer())
	mux.Bind(call, analysis, engine.Recording)

	analysis.SetHandlers(transport.Handlers{
		OnSegment:   s.handleSegment,
		OnSpoofProb: s.handleSpoofProb,
		OnError:     s.handleAnalysisError,
		OnRaw:       s.handleRaw,
	})

	classifier.SetWarningHandler(func(seg risk.Segment, answer string) {
		s.sink.AnalysisLog(fmt.Sprintf("의심내용 = %s: %s\n%s", seg.Speaker, seg.Text, answer))
	})

	return s
}

// VisualizerLevels returns the current input level bars for a UI frontend.
func (s *Service) VisualizerLevels() []float64 {
	return s.viz.Levels()
}

// SessionID returns the identifier under which this run's dialogue history
// is kept.
func (s *Service) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessionID
}

// ConnectAnalysis opens the analysis channel. Safe to call when already
// connected.
func (s *Service) ConnectAnalysis(ctx context.Context) error {
	return s.analysis.Connect(ctx)
}

// CreateRoom registers a new room and joins the call relay for it.
func (s *Service) CreateRoom(ctx context.Context, name string) (rooms.Room, error) {
	room, err := s.rooms.Create(ctx, s.cfg.UserID, name)
	if err != nil {
		return rooms.Room{}, err
	}

	if err := s.connectCall(ctx, room.ID); err != nil {
		return rooms.Room{}, err
	}

	return room, nil
}

// JoinRoom joins an existing room and connects to its call relay.
func (s *Service) JoinRoom(ctx context.Context, roomID string) error {
	if err := s.rooms.Join(ctx, s.cfg.UserID, roomID); err != nil {
		return err
	}

	return s.connectCall(ctx, roomID)
}

// LeaveRoom closes the call relay and deregisters from the room.
func (s *Service) LeaveRoom(ctx context.Context) error {
	s.mu.Lock()
	roomID := s.roomID
	s.roomID = ""
	s.mu.Unlock()

	if roomID == "" {
		return nil
	}

	s.call.Close()

	return s.rooms.Leave(ctx, s.cfg.UserID, roomID)
}

// ListRooms returns the rooms currently open on the signaling server.
func (s *Service) ListRooms(ctx context.Context) ([]rooms.Room, error) {
	return s.rooms.List(ctx)
}

func (s *Service) connectCall(ctx context.Context, roomID string) error {
	if err := s.call.Connect(ctx, roomID); err != nil {
		return err
	}

	s.mu.Lock()
	s.roomID = roomID
	s.mu.Unlock()

	return nil
}

// StartCall begins capture and both flush cycles. The spoof window is reset
// so alerts reflect only the new call.
func (s *Service) StartCall(ctx context.Context) error {
	s.aggregator.Reset()

	if err := s.engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	s.mux.Start(ctx)
	s.classifier.Start(ctx)

	return nil
}

// StopCall halts capture and the flush cycles. Buffered but unflushed audio
// is discarded.
func (s *Service) StopCall() {
	s.engine.Stop()
	s.mux.Stop()
	s.classifier.Stop()
}

// UploadAudioFile sends a pre-recorded file through the analysis channel
// for offline inspection. The format is taken from the file extension.
func (s *Service) UploadAudioFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read audio file: %w", err)
	}

	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format == "" {
		return fmt.Errorf("audio file has no extension: %s", path)
	}

	if err := s.analysis.SendFile(data, format); err != nil {
		return fmt.Errorf("failed to upload audio file: %w", err)
	}

	s.logger.Info("Audio file uploaded",
		zap.String("path", path),
		zap.String("format", format))

	return nil
}

// Close releases both transports.
func (s *Service) Close() {
	s.call.Close()
	s.analysis.Close()
}

// handleSegment turns one transcription event into a call log line and a
// classification job. Backend diarization labels are replaced with a
// user-facing speaker name.
func (s *Service) handleSegment(speaker, text string) {
	speaker = normalizeSpeaker(speaker)

	s.sink.CallLog(fmt.Sprintf("[%s] %s", speaker, text))

	s.classifier.Submit(risk.Segment{
		SessionID: s.SessionID(),
		Speaker:   speaker,
		Text:      text,
	})
}

// handleSpoofProb folds one spoof probability into the sliding window. The
// backend reports the probability the voice is genuine-sounding synthetic;
// confidence here is the complement so higher always means more suspicious.
func (s *Service) handleSpoofProb(prob float64) {
	confidence := 1 - prob

	alert, ok := s.aggregator.Add(confidence)
	if !ok {
		return
	}

	s.sink.CallLog(fmt.Sprintf("주의! 변조음성 감지! 가능성: %.1f%%", alert.Mean*100))
}

func (s *Service) handleAnalysisError(message string) {
	s.logger.Warn("Analysis backend error", zap.String("message", message))
	s.sink.AnalysisLog("분석 오류: " + message)
}

func (s *Service) handleRaw(payload string) {
	s.logger.Debug("Unrecognized analysis message", zap.String("payload", payload))
}

// normalizeSpeaker rewrites diarization labels like "SPEAKER_00" to
// "대화자00", keeping participants distinguishable; an empty label means the
// remote party.
func normalizeSpeaker(speaker string) string {
	if speaker == "" {
		return "대화자"
	}

	return strings.Replace(speaker, "SPEAKER_", "대화자", 1)
}
