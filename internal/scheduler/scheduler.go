// Package scheduler drives the poll loop: for every subject it fetches the latest page,
// picks the newest item, gates it, and hands new items to the dispatcher.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"dynamic_bot/internal/config"
	"dynamic_bot/internal/filter"
	"dynamic_bot/internal/model"
	"dynamic_bot/internal/notifier"
	"dynamic_bot/internal/tracker"
)

// Source returns the most recent page of a subject's feed.
type Source interface {
	FetchLatestPage(ctx context.Context, subjectID int64) (*model.Page, error)
}

// Normalizer turns a raw item into a message.
type Normalizer interface {
	Normalize(subjectID int64, item model.RawItem) model.Message
}

// Dispatcher accepts a job without waiting for its delivery.
type Dispatcher interface {
	Submit(job notifier.Job) error
}

// Options configures a Scheduler.
type Options struct {
	Subjects     []int64
	Interval     time.Duration
	Variation    time.Duration
	SubjectDelay time.Duration
	// PageSize is how many of the most recent items are considered.
	PageSize  int
	FirstSeen config.FirstSeenPolicy
	Gates     filter.Gates
}

// Scheduler polls subjects strictly one at a time.
type Scheduler struct {
	source     Source
	tracker    *tracker.Tracker
	normalizer Normalizer
	dispatcher Dispatcher
	opts       Options
	log        *slog.Logger

	now    func() time.Time
	jitter func(variation time.Duration) time.Duration
	sleep  func(ctx context.Context, d time.Duration) bool
}

// New creates a Scheduler.
func New(source Source, tr *tracker.Tracker, norm Normalizer, disp Dispatcher, opts Options, log *slog.Logger) *Scheduler {
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	return &Scheduler{
		source:     source,
		tracker:    tr,
		normalizer: norm,
		dispatcher: disp,
		opts:       opts,
		log:        log,
		now:        time.Now,
		jitter:     uniformJitter,
		sleep:      sleepContext,
	}
}

// Run polls all subjects, sleeps a jittered interval, and repeats until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		start := s.now()
		s.log.Info("poll cycle started", "subjects", len(s.opts.Subjects))

		sent := s.RunCycle(ctx)
		if ctx.Err() != nil {
			return
		}

		wait := s.NextInterval()
		s.log.Info("poll cycle finished",
			"notifications", sent, "elapsed", s.now().Sub(start).Round(time.Millisecond), "sleep", wait)
		if !s.sleep(ctx, wait) {
			return
		}
	}
}

// RunCycle checks every subject once, in configured order, and returns
// the number of notifications handed to the dispatcher.
func (s *Scheduler) RunCycle(ctx context.Context) int {
	sent := 0
	for i, id := range s.opts.Subjects {
		if i > 0 && !s.sleep(ctx, s.opts.SubjectDelay) {
			return sent
		}
		if s.checkSubject(ctx, id) {
			sent++
		}
	}
	return sent
}

// NextInterval returns the base interval shifted by a uniform random amount within the variation.
func (s *Scheduler) NextInterval() time.Duration {
	d := s.opts.Interval
	if s.opts.Variation > 0 {
		d += s.jitter(s.opts.Variation)
	}
	return max(d, 0)
}

func (s *Scheduler) checkSubject(ctx context.Context, subjectID int64) bool {
	log := s.log.With("subject_id", subjectID)

	page, err := s.source.FetchLatestPage(ctx, subjectID)
	if err != nil {
		log.Error("fetch feed", "error", err)
		return false
	}

	item, ok := latest(page.Items, s.opts.PageSize)
	if !ok {
		log.Info("feed is empty")
		return false
	}
	log = log.With("item_id", item.ID)

	first := s.tracker.Observe(subjectID)

	if v := s.opts.Gates.Check(item, s.now()); v != filter.Pass {
		log.Debug("item skipped", "reason", v.String(), "published_at", item.PublishedAt)
		return false
	}

	if first && s.opts.FirstSeen == config.FirstSeenBaseline {
		s.tracker.Commit(subjectID, item.ID)
		log.Info("baseline recorded")
		return false
	}

	if !s.tracker.IsNew(subjectID, item.ID) {
		log.Info("no new update")
		return false
	}

	msg := s.normalizer.Normalize(subjectID, item)

	// Committing before the handoff lets a failed delivery roll back to prev.
	prev := s.tracker.Commit(subjectID, item.ID)
	if err := s.dispatcher.Submit(notifier.Job{Message: msg, Previous: prev}); err != nil {
		s.tracker.Rollback(subjectID, item.ID, prev)
		log.Warn("dispatch notification", "error", err)
		return false
	}

	log.Info("new update queued", "author", msg.AuthorName)
	return true
}

// latest returns the item with the greatest publish time among the first n items.
func latest(items []model.RawItem, n int) (model.RawItem, bool) {
	if len(items) > n {
		items = items[:n]
	}
	if len(items) == 0 {
		return model.RawItem{}, false
	}
	best := items[0]
	for _, it := range items[1:] {
		if it.PublishedAt.After(best.PublishedAt) {
			best = it
		}
	}
	return best, true
}

func uniformJitter(variation time.Duration) time.Duration {
	return time.Duration(rand.Int64N(int64(2*variation)+1)) - variation
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
