// Package polling keeps a local view of a file's thread and of the
// notification feed fresh by re-fetching on an interval. Fetch errors are
// logged and retried on the next tick.
package polling

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Simoroui/autotech-file-service-sub001/internal/client"
	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
	"github.com/Simoroui/autotech-file-service-sub001/internal/notifications"
)

const (
	DefaultThreadInterval       = 4 * time.Second
	DefaultNotificationInterval = 5 * time.Second
	DefaultFetchTimeout         = 20 * time.Second
	DefaultAlertCooldown        = 30 * time.Second
)

// Runner is a poll loop that stops when its context is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// RunAll runs every poller until ctx is cancelled or one of them fails.
func RunAll(ctx context.Context, runners ...Runner) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		r := r
		g.Go(func() error { return r.Run(gctx) })
	}
	return g.Wait()
}

// loop calls poll immediately and then every interval until ctx is done.
func loop(ctx context.Context, interval time.Duration, poll func(context.Context) error, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := poll(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type FileFetcher interface {
	GetFile(ctx context.Context, fileID string) (*client.FileView, error)
}

type ThreadConfig struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	Cooldown     time.Duration
	MatchWindow  time.Duration
	// OnUpdate runs after every successful fetch.
	OnUpdate func(ThreadUpdate)
	// OnAlert runs when there is new activity and the cooldown allows it.
	OnAlert func(ThreadUpdate)
}

// ThreadUpdate describes one successful fetch.
type ThreadUpdate struct {
	File           *client.FileView
	New            []models.CommentView
	StatusChanged  bool
	PreviousStatus models.FileStatus
}

// Activity reports whether the fetch brought anything the user hasn't seen.
func (u ThreadUpdate) Activity() bool {
	return len(u.New) > 0 || u.StatusChanged
}

type ThreadPoller struct {
	fetcher  FileFetcher
	fileID   string
	cfg      ThreadConfig
	thread   *Thread
	cooldown *Cooldown
	now      func() time.Time
	logger   *zap.Logger

	seeded     bool
	lastStatus models.FileStatus
}

func NewThreadPoller(fetcher FileFetcher, fileID string, cfg ThreadConfig, logger *zap.Logger) *ThreadPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultThreadInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultAlertCooldown
	}
	return &ThreadPoller{
		fetcher:  fetcher,
		fileID:   fileID,
		cfg:      cfg,
		thread:   NewThread(cfg.MatchWindow),
		cooldown: NewCooldown(cfg.Cooldown),
		now:      time.Now,
		logger:   logger.Named("thread-poller").With(zap.String("file_id", fileID)),
	}
}

// Thread is the poller's local view of the discussion.
func (p *ThreadPoller) Thread() *Thread { return p.thread }

// Poll fetches once. The first successful fetch only seeds state.
func (p *ThreadPoller) Poll(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	file, err := p.fetcher.GetFile(fetchCtx, p.fileID)
	if err != nil {
		return err
	}

	update := ThreadUpdate{File: file, PreviousStatus: p.lastStatus}
	if !p.seeded {
		p.thread.Seed(file.Comments)
		p.seeded = true
	} else {
		update.New = p.thread.Reconcile(file.Comments)
		update.StatusChanged = file.Status != p.lastStatus
	}
	p.lastStatus = file.Status

	if p.cfg.OnUpdate != nil {
		p.cfg.OnUpdate(update)
	}
	if update.Activity() && p.cooldown.Allow(p.now()) && p.cfg.OnAlert != nil {
		p.cfg.OnAlert(update)
	}
	return nil
}

func (p *ThreadPoller) Run(ctx context.Context) error {
	return loop(ctx, p.cfg.Interval, p.Poll, p.logger)
}

type FeedFetcher interface {
	Notifications(ctx context.Context) (*notifications.Feed, error)
}

type NotificationConfig struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	Cooldown     time.Duration
	OnUpdate     func(NotificationUpdate)
	OnAlert      func(NotificationUpdate)
}

// NotificationUpdate is the feed after one fetch. New holds unread entries
// not seen by earlier fetches.
type NotificationUpdate struct {
	Unread int
	Badge  string
	New    []models.Notification
	Feed   *notifications.Feed
}

type NotificationPoller struct {
	fetcher  FeedFetcher
	cfg      NotificationConfig
	cooldown *Cooldown
	known    map[string]bool
	seeded   bool
	now      func() time.Time
	logger   *zap.Logger
}

func NewNotificationPoller(fetcher FeedFetcher, cfg NotificationConfig, logger *zap.Logger) *NotificationPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultNotificationInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultAlertCooldown
	}
	return &NotificationPoller{
		fetcher:  fetcher,
		cfg:      cfg,
		cooldown: NewCooldown(cfg.Cooldown),
		known:    make(map[string]bool),
		now:      time.Now,
		logger:   logger.Named("notification-poller"),
	}
}

func (p *NotificationPoller) Poll(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	feed, err := p.fetcher.Notifications(fetchCtx)
	if err != nil {
		return err
	}

	update := NotificationUpdate{Feed: feed}
	for _, n := range feed.Notifications {
		if n.Read {
			p.known[n.ID] = true
			continue
		}
		update.Unread++
		if !p.known[n.ID] {
			p.known[n.ID] = true
			if p.seeded {
				update.New = append(update.New, n)
			}
		}
	}
	update.Badge = notifications.Badge(update.Unread)
	p.seeded = true

	if p.cfg.OnUpdate != nil {
		p.cfg.OnUpdate(update)
	}
	if len(update.New) > 0 && p.cooldown.Allow(p.now()) && p.cfg.OnAlert != nil {
		p.cfg.OnAlert(update)
	}
	return nil
}

func (p *NotificationPoller) Run(ctx context.Context) error {
	return loop(ctx, p.cfg.Interval, p.Poll, p.logger)
}
