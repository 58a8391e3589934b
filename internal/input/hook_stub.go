//go:build !windows

package input

import "log/slog"

// Hook is the platform hook. Only Windows has one; elsewhere Subscribe fails
// with ErrUnsupported.
type Hook struct {
	logger *slog.Logger
}

// NewHook creates an unsubscribed platform hook.
func NewHook(logger *slog.Logger) *Hook {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hook{logger: logger}
}

func (h *Hook) Subscribe(Handlers) error {
	h.logger.Warn("input hooks requested on unsupported platform")
	return ErrUnsupported
}

func (h *Hook) Unsubscribe() error {
	return nil
}
