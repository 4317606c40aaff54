package guard

import "go.uber.org/zap"

// EventSink receives user-facing guard events. The call log carries live
// transcript lines and spoof alerts; the analysis log carries LLM risk
// warnings. A UI frontend implements this; the default sink writes both to
// the structured log.
type EventSink interface {
	CallLog(line string)
	AnalysisLog(line string)
}

type logSink struct {
	logger *zap.Logger
}

// NewLogSink creates an EventSink that mirrors guard events to the logger.
func NewLogSink(logger *zap.Logger) EventSink {
	return &logSink{logger: logger}
}

func (s *logSink) CallLog(line string) {
	s.logger.Info("Call event", zap.String("line", line))
}

func (s *logSink) AnalysisLog(line string) {
	s.logger.Info("Analysis event", zap.String("line", line))
}
