package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
	"github.com/Simoroui/autotech-file-service-sub001/internal/polling"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var threadInterval, feedInterval, cooldown time.Duration
	var noBell, noInput bool

	cmd := &cobra.Command{
		Use:   "watch <file-id>",
		Short: "Follow a file's discussion and your notifications",
		Long: "Polls the file thread and the notification feed. Lines typed on stdin are posted\n" +
			"as comments; \"/image <path> [text]\" attaches an image.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := ctx.ensureSession()
			if err != nil {
				return err
			}
			c, err := s.Client()
			if err != nil {
				return err
			}
			logger := ctx.logger()
			defer func() { _ = logger.Sync() }()

			out := cmd.OutOrStdout()
			w := &watchView{out: out, color: isTerminal(out), bell: !noBell && isTerminal(out)}

			thread := polling.NewThreadPoller(c, args[0], polling.ThreadConfig{
				Interval: threadInterval,
				Cooldown: cooldown,
				OnUpdate: w.threadUpdated,
				OnAlert:  w.threadAlert,
			}, logger)
			feed := polling.NewNotificationPoller(c, polling.NotificationConfig{
				Interval: feedInterval,
				Cooldown: cooldown,
				OnUpdate: w.feedUpdated,
				OnAlert:  w.feedAlert,
			}, logger)

			runners := []polling.Runner{thread, feed}
			if !noInput {
				runners = append(runners, &commentSender{
					poster: c,
					fileID: args[0],
					userID: s.UserID,
					thread: thread.Thread(),
					lines:  readLines(cmd.InOrStdin()),
					view:   w,
				})
			}
			return polling.RunAll(runCtx, runners...)
		},
	}

	cmd.Flags().DurationVar(&threadInterval, "interval", polling.DefaultThreadInterval, "Thread poll interval")
	cmd.Flags().DurationVar(&feedInterval, "feed-interval", polling.DefaultNotificationInterval, "Notification poll interval")
	cmd.Flags().DurationVar(&cooldown, "cooldown", polling.DefaultAlertCooldown, "Minimum time between alerts")
	cmd.Flags().BoolVar(&noBell, "no-bell", false, "Never ring the terminal bell")
	cmd.Flags().BoolVar(&noInput, "no-input", false, "Don't read comments from stdin")
	return cmd
}

// watchView serialises output from the poll loops.
type watchView struct {
	mu     sync.Mutex
	out    io.Writer
	color  bool
	bell   bool
	seeded bool
	unread int
}

func (w *watchView) printf(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, format, args...)
}

func (w *watchView) threadUpdated(u polling.ThreadUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.seeded {
		w.seeded = true
		vehicle := strings.TrimSpace(u.File.Vehicle.Make + " " + u.File.Vehicle.Model)
		fmt.Fprintln(w.out, colorize(fmt.Sprintf("%s %s [%s]", u.File.ID, vehicle, u.File.Status), ansiBold, w.color))
		for _, c := range u.File.Comments {
			fmt.Fprintln(w.out, formatComment(c))
		}
		return
	}
	if u.StatusChanged {
		fmt.Fprintln(w.out, colorize(fmt.Sprintf("status %s -> %s", u.PreviousStatus, u.File.Status), ansiYellow, w.color))
	}
	for _, c := range u.New {
		fmt.Fprintln(w.out, formatComment(c))
	}
}

func (w *watchView) threadAlert(polling.ThreadUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.bell {
		bell(w.out)
	}
}

func (w *watchView) feedUpdated(u polling.NotificationUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if u.Unread != w.unread {
		w.unread = u.Unread
		label := "no unread notifications"
		if u.Badge != "" {
			label = u.Badge + " unread notification(s)"
		}
		fmt.Fprintln(w.out, colorize(label, ansiDim, w.color))
	}
}

func (w *watchView) feedAlert(u polling.NotificationUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, n := range u.New {
		fmt.Fprintln(w.out, colorize("! "+n.Message, ansiYellow, w.color))
	}
	if w.bell {
		bell(w.out)
	}
}

func formatComment(c models.CommentView) string {
	line := fmt.Sprintf("[%s] %s: %s", c.CreatedAt.Local().Format("15:04"), c.AuthorLabel, c.Text)
	if c.ImagePath != "" {
		line += " (image)"
	}
	return line
}

type commentPoster interface {
	PostComment(ctx context.Context, fileID, text, imagePath string) (*models.Comment, error)
}

// commentSender posts stdin lines and tracks them as temporaries until the
// thread poller sees them come back.
type commentSender struct {
	poster commentPoster
	fileID string
	userID string
	thread *polling.Thread
	lines  <-chan string
	view   *watchView
}

func (s *commentSender) Run(ctx context.Context) error {
	lines := s.lines
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			s.send(ctx, line)
		}
	}
}

func (s *commentSender) send(ctx context.Context, line string) {
	text, image := parseInput(line)
	if text == "" && image == "" {
		return
	}
	tmp := s.thread.AddTemporary(s.userID, text, image != "", time.Now())
	s.view.printf("%s\n", colorize("you (sending): "+text, ansiDim, s.view.color))

	posted, err := s.poster.PostComment(ctx, s.fileID, text, image)
	if err != nil {
		s.thread.Discard(tmp.LocalID)
		s.view.printf("send failed: %v\n", err)
		return
	}
	s.thread.Confirm(tmp.LocalID, posted.ID)
	if s.userID == "" {
		s.userID = posted.AuthorID
	}
}

func parseInput(line string) (text, image string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/image ") {
		return line, ""
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, "/image "))
	image, text, _ = strings.Cut(rest, " ")
	return strings.TrimSpace(text), image
}

func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			ch <- scanner.Text()
		}
	}()
	return ch
}
