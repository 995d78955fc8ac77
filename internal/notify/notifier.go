// Package notify delivers operator alerts to chat channels. Alerts are
// filtered by event name; critical events always go through.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Sender delivers one message to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// criticalPrefix marks titles of events that bypass the filter.
const criticalPrefix = "[CRITICAL] "

// sendTimeout bounds each sender so a slow channel cannot stall the cycle.
const sendTimeout = 10 * time.Second

// Notifier fans alerts out to every configured Sender.
type Notifier struct {
	senders  []Sender
	events   map[string]bool
	critical map[string]bool
	logger   *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every event.
// Events listed in critical bypass the filter.
func NewNotifier(senders []Sender, events, critical []string, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders:  senders,
		events:   toSet(events),
		critical: toSet(critical),
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

func toSet(list []string) map[string]bool {
	m := make(map[string]bool, len(list))
	for _, e := range list {
		if e = strings.TrimSpace(e); e != "" {
			m[e] = true
		}
	}
	return m
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify delivers the alert if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] && !n.critical[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	if n.critical[event] {
		title = criticalPrefix + title
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll delivers regardless of the filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch tries every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		sctx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := s.Send(sctx, title, message)
		cancel()
		if err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
