package logger

import (
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type requestIDHook struct{}

var _ logrus.Hook = (*requestIDHook)(nil)

func newRequestIDHook() *requestIDHook {
	return &requestIDHook{}
}

func (h *requestIDHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire copies the chi request id from the entry context, if any.
func (h *requestIDHook) Fire(entry *logrus.Entry) error {
	if entry == nil || entry.Context == nil || entry.Data == nil {
		return nil
	}
	if id := middleware.GetReqID(entry.Context); id != "" {
		entry.Data["request_id"] = id
	}
	return nil
}

type serviceHook string

func (h serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h serviceHook) Fire(entry *logrus.Entry) error {
	if entry.Data != nil {
		entry.Data["service"] = string(h)
	}
	return nil
}
