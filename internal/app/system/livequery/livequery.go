// internal/app/system/livequery/livequery.go

// Package livequery pushes "something changed" signals to connected
// browsers so calendar and blog pages can refetch without reloading.
//
// A Hub fans out per-topic notifications. Watch feeds a topic from a
// MongoDB change stream; when the server cannot provide change streams
// (standalone mongod), it degrades to interval polling, which still
// drives the same subscriber channels. Subscribers only ever learn THAT
// a topic changed, never what changed; they respond by refetching a
// full snapshot.
package livequery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// DefaultPollInterval is the fallback cadence on servers without
// change streams.
const DefaultPollInterval = 15 * time.Second

// Topics the app publishes on.
const (
	TopicBlog     = "blog"
	TopicCalendar = "calendar"
)

// Hub fans out change notifications by topic.
type Hub struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[string]map[chan struct{}]struct{}
}

// NewHub returns an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   map[string]map[chan struct{}]struct{}{},
	}
}

// Subscribe registers interest in a topic. The returned channel
// receives at most one pending signal at a time; consecutive
// notifications between reads coalesce. Call cancel when the client
// disconnects.
func (h *Hub) Subscribe(topic string) (ch <-chan struct{}, cancel func()) {
	c := make(chan struct{}, 1)

	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = map[chan struct{}]struct{}{}
	}
	h.subs[topic][c] = struct{}{}
	h.mu.Unlock()

	return c, func() {
		h.mu.Lock()
		delete(h.subs[topic], c)
		h.mu.Unlock()
	}
}

// Notify signals every subscriber of the topic. Never blocks: a
// subscriber that already has a pending signal is skipped.
func (h *Hub) Notify(topic string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subs[topic] {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}

// Subscribers reports the current subscriber count for a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Watch feeds topic from change streams over the named collections,
// falling back to polling when the deployment cannot stream. Blocks
// until ctx is done; run it in a goroutine from startup.
func (h *Hub) Watch(ctx context.Context, db *mongo.Database, topic string, collections []string, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "ns.coll", Value: bson.D{{Key: "$in", Value: collections}}},
		}}},
	}

	for {
		stream, err := db.Watch(ctx, pipeline)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if isStreamUnsupported(err) {
				h.logger.Info("change streams unavailable, polling instead",
					zap.String("topic", topic),
					zap.Duration("interval", pollInterval))
				h.poll(ctx, topic, pollInterval)
				return
			}
			h.logger.Warn("change stream open failed, retrying",
				zap.String("topic", topic),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		h.logger.Info("change stream open",
			zap.String("topic", topic),
			zap.Strings("collections", collections))

		for stream.Next(ctx) {
			h.Notify(topic)
		}
		streamErr := stream.Err()
		stream.Close(context.Background())

		if ctx.Err() != nil {
			return
		}
		if streamErr != nil {
			h.logger.Warn("change stream ended, reopening",
				zap.String("topic", topic),
				zap.Error(streamErr))
		}
	}
}

// poll drives subscribers on a timer. Subscribers refetch snapshots on
// every tick, so an idle topic costs one read per client per interval.
func (h *Hub) poll(ctx context.Context, topic string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Notify(topic)
		}
	}
}

// isStreamUnsupported matches the errors standalone servers return for
// $changeStream.
func isStreamUnsupported(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		// 40573: $changeStream is only supported on replica sets.
		if ce.Code == 40573 {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "changestream") && strings.Contains(msg, "replica") ||
		strings.Contains(msg, "$changestream") ||
		strings.Contains(msg, "only supported on replica sets")
}
