// File: internal/infra/notify/notifier.go
package notify

import (
	"fmt"

	"render-studio/internal/domain/model"
	"render-studio/internal/domain/ports/watch"
	"render-studio/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Notifier converts change events into sink entries. The mapping is
// transition-sensitive:
//
//	insert                          -> "started"
//	any -> succeeded                -> "completed"
//	non-terminal -> other terminal  -> "ended"
//
// Updates that only change the artifact url or the prompt produce nothing.
type Notifier struct {
	sink *Sink
	log  *zerolog.Logger
}

func NewNotifier(sink *Sink, logger *zerolog.Logger) *Notifier {
	compLog := logger.With().Str("component", "Notifier").Logger()
	return &Notifier{sink: sink, log: &compLog}
}

// Handlers adapts the notifier to either reconciliation strategy.
func (n *Notifier) Handlers() watch.Handlers {
	return watch.Handlers{
		OnInsert: n.OnInsert,
		OnUpdate: n.OnUpdate,
	}
}

func (n *Notifier) OnInsert(row *model.Render) {
	if row == nil {
		return
	}
	n.push(Notification{
		UserID:   row.UserID,
		Kind:     KindStarted,
		RenderID: row.ID,
		Status:   row.Status,
		Message:  "Render started",
	})
}

func (n *Notifier) OnUpdate(before, after *model.Render) {
	if after == nil {
		return
	}
	kind, ok := classify(before, after)
	if !ok {
		return
	}
	notif := Notification{
		UserID:   after.UserID,
		Kind:     kind,
		RenderID: after.ID,
		Status:   after.Status,
		ImageURL: after.ImageURL,
	}
	switch kind {
	case KindCompleted:
		notif.Message = "Render completed"
	case KindEnded:
		notif.Message = fmt.Sprintf("Render ended: %s", after.Status)
	}
	n.push(notif)
}

// classify decides whether a state transition is worth announcing. A nil
// before (the feed lost the prior state) is treated as non-terminal so
// terminal arrivals still notify.
func classify(before, after *model.Render) (Kind, bool) {
	prev := model.RenderStatusProcessing
	if before != nil {
		prev = before.Status
	}
	if prev == after.Status {
		return "", false
	}
	switch {
	case after.Status == model.RenderStatusSucceeded:
		return KindCompleted, true
	case after.Status.IsTerminal() && !prev.IsTerminal():
		return KindEnded, true
	}
	return "", false
}

func (n *Notifier) push(notif Notification) {
	id := n.sink.Push(notif)
	metrics.IncNotification(string(notif.Kind))
	n.log.Debug().
		Str("notification_id", id).
		Str("render_id", notif.RenderID).
		Str("kind", string(notif.Kind)).
		Msg("notification emitted")
}
