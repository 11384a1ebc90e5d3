// File: internal/infra/redis/render_feed.go
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"render-studio/internal/domain/model"
	"render-studio/internal/domain/ports/watch"

	"github.com/rs/zerolog"
)

// The change feed mirrors every render upsert onto a per-user pub/sub
// channel so a live subscriber sees the same insert/update events the
// polling reconciler would compute. Delivery is at-most-once; the polling
// reconciler remains the catch-up path.

const (
	feedEventInsert = "insert"
	feedEventUpdate = "update"
)

func feedChannel(userID string) string { return fmt.Sprintf("renders:%s", userID) }

type feedRow struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	PredictionID   string  `json:"prediction_id"`
	RenderType     string  `json:"render_type"`
	Prompt         string  `json:"prompt"`
	SourceImageURL string  `json:"source_image_url"`
	ImageURL       *string `json:"image_url"`
	ErrorText      string  `json:"error_text"`
	Status         string  `json:"status"`
	CreatedAt      int64   `json:"created_at"`
	UpdatedAt      int64   `json:"updated_at"`
}

type feedEvent struct {
	Event  string   `json:"event"`
	Before *feedRow `json:"before,omitempty"`
	After  *feedRow `json:"after"`
}

func toFeedRow(r *model.Render) *feedRow {
	if r == nil {
		return nil
	}
	return &feedRow{
		ID:             r.ID,
		UserID:         r.UserID,
		PredictionID:   r.PredictionID,
		RenderType:     r.RenderType,
		Prompt:         r.Prompt,
		SourceImageURL: r.SourceImageURL,
		ImageURL:       r.ImageURL,
		ErrorText:      r.ErrorText,
		Status:         string(r.Status),
		CreatedAt:      r.CreatedAt.UnixMilli(),
		UpdatedAt:      r.UpdatedAt.UnixMilli(),
	}
}

func fromFeedRow(row *feedRow) *model.Render {
	if row == nil {
		return nil
	}
	return &model.Render{
		ID:             row.ID,
		UserID:         row.UserID,
		PredictionID:   row.PredictionID,
		RenderType:     row.RenderType,
		Prompt:         row.Prompt,
		SourceImageURL: row.SourceImageURL,
		ImageURL:       row.ImageURL,
		ErrorText:      row.ErrorText,
		Status:         model.RenderStatus(row.Status),
		CreatedAt:      time.UnixMilli(row.CreatedAt),
		UpdatedAt:      time.UnixMilli(row.UpdatedAt),
	}
}

// Feed publishes and subscribes to per-user render change events.
type Feed struct {
	client RedisClient
	log    *zerolog.Logger
}

func NewFeed(client RedisClient, log *zerolog.Logger) *Feed {
	return &Feed{client: client, log: log}
}

var _ watch.Watcher = (*Feed)(nil)

// PublishInsert announces a freshly created render. Publish failures are
// logged, never surfaced: the feed is an optimization over polling.
func (f *Feed) PublishInsert(ctx context.Context, row *model.Render) {
	f.publish(ctx, row.UserID, feedEvent{Event: feedEventInsert, After: toFeedRow(row)})
}

// PublishUpdate announces an observable change, carrying the prior state for
// transition-sensitive consumers.
func (f *Feed) PublishUpdate(ctx context.Context, before, after *model.Render) {
	f.publish(ctx, after.UserID, feedEvent{Event: feedEventUpdate, Before: toFeedRow(before), After: toFeedRow(after)})
}

func (f *Feed) publish(ctx context.Context, userID string, ev feedEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		f.log.Error().Err(err).Msg("feed: marshal event")
		return
	}
	if err := f.client.Publish(ctx, feedChannel(userID), b); err != nil {
		f.log.Warn().Err(err).Str("user_id", userID).Msg("feed: publish failed")
	}
}

// Watch subscribes to the owner's channel and dispatches events until the
// returned stop function is called or ctx is canceled. Stop is idempotent.
func (f *Feed) Watch(ctx context.Context, userID string, h watch.Handlers) (watch.StopFunc, error) {
	sub := f.client.Subscribe(ctx, feedChannel(userID))

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-sub.Messages():
				if !ok {
					return
				}
				var ev feedEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					f.log.Warn().Err(err).Msg("feed: malformed event dropped")
					continue
				}
				switch ev.Event {
				case feedEventInsert:
					if h.OnInsert != nil && ev.After != nil {
						h.OnInsert(fromFeedRow(ev.After))
					}
				case feedEventUpdate:
					if h.OnUpdate != nil && ev.After != nil {
						h.OnUpdate(fromFeedRow(ev.Before), fromFeedRow(ev.After))
					}
				}
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	return stop, nil
}
