package pipeline

import (
	"context"
	"crypto/sha256"
	"errors"

	"sketch-repair/internal/detector"
	"sketch-repair/internal/logger"
	"sketch-repair/internal/oracle"
	"sketch-repair/internal/types"
)

// eventCache runs the page oracle at most once per distinct document text.
// Failed runs are cached as "no events" so a broken browser is not relaunched
// for the same text.
type eventCache struct {
	page    oracle.PageRunner
	dir     string
	log     logger.Logger
	entries map[[sha256.Size]byte][]types.ErrorEvent
	runs    int
}

func newEventCache(page oracle.PageRunner, dir string, log logger.Logger) *eventCache {
	return &eventCache{
		page:    page,
		dir:     dir,
		log:     log,
		entries: make(map[[sha256.Size]byte][]types.ErrorEvent),
	}
}

func (c *eventCache) events(ctx context.Context, doc string) []types.ErrorEvent {
	key := sha256.Sum256([]byte(doc))
	if ev, ok := c.entries[key]; ok {
		return ev
	}

	c.runs++
	ev, err := oracle.ExecuteDocument(ctx, c.page, c.dir, doc, c.log)
	if err != nil {
		if errors.Is(err, oracle.ErrDisabled) {
			c.log.Debug("page oracle disabled")
		} else {
			c.log.Warn("page execution failed", logger.Err(err))
		}
		ev = nil
	}
	c.entries[key] = ev
	return ev
}

func (c *eventCache) classify(ctx context.Context, doc string) detector.Classification {
	return detector.Classify(c.events(ctx, doc))
}
