package observer

import "github.com/sirupsen/logrus"

// LogSink writes events to a logrus logger. Sample batches are logged at
// trace level, everything else at info.
type LogSink struct {
	logger *logrus.Logger
}

func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Handle(ev Event) error {
	entry := s.logger.WithFields(logrus.Fields{
		"event":   ev.Kind,
		"session": ev.Session,
	})
	switch v := ev.Value.(type) {
	case []int32:
		entry.WithField("count", len(v)).Trace("ECG samples")
	case DeviceInfo:
		entry.WithFields(logrus.Fields{
			"model":        v.Model,
			"manufacturer": v.Manufacturer,
		}).Info("Device identified")
	case float64:
		entry.WithField("hz", v).Info("Sample rate")
	default:
		entry.WithField("value", v).Info("Device update")
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
