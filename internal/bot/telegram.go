// Package bot serves operator commands over Telegram.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cryptothreads/internal/job"
	"cryptothreads/internal/ledger"
	"cryptothreads/internal/ratebudget"

	tele "gopkg.in/telebot.v3"
)

const (
	historyWindow = 48 * time.Hour
	historyLimit  = 5
	replyTimeout  = 10 * time.Second
)

type CycleTrigger interface {
	Trigger() error
	Running() bool
	Last() (job.LastRun, bool)
}

type ThreadReader interface {
	History(ctx context.Context, maxAge time.Duration) ([]ledger.Entry, error)
	QuotaRemaining(ctx context.Context) (int, error)
}

type RateReporter interface {
	Snapshot() []ratebudget.Status
}

// Deps back the commands; a nil dependency makes its command answer that
// the feature is unavailable.
type Deps struct {
	Cycles  CycleTrigger
	Threads ThreadReader
	Rates   RateReporter
}

// NewTelegramBot returns nil without error when token is empty. The same
// bot sends the chat digest and answers commands.
func NewTelegramBot(token string) (*tele.Bot, error) {
	if token == "" {
		slog.Info("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil, nil
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return b, nil
}

// StartTelegramBot registers the commands and starts polling in the
// background. A nil bot is ignored.
func StartTelegramBot(b *tele.Bot, deps Deps) {
	if b == nil {
		return
	}
	RegisterCommands(b, deps)
	slog.Info("Telegram bot started", "user", b.Me.Username)
	go b.Start()
}

type handlerRegistrar interface {
	Handle(endpoint interface{}, h tele.HandlerFunc, m ...tele.MiddlewareFunc)
}

func RegisterCommands(r handlerRegistrar, deps Deps) {
	r.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	r.Handle("/update", func(c tele.Context) error {
		return c.Send(updateReply(deps.Cycles))
	})

	r.Handle("/status", func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()
		return c.Send(statusReply(ctx, deps), tele.NoPreview)
	})

	r.Handle("/history", func(c tele.Context) error {
		if deps.Threads == nil {
			return c.Send("Thread history unavailable")
		}
		ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()
		entries, err := deps.Threads.History(ctx, historyWindow)
		if err != nil {
			return c.Send(fmt.Sprintf("Error loading history: %v", err))
		}
		return c.Send(historyReply(entries))
	})
}

func updateReply(cycles CycleTrigger) string {
	if cycles == nil {
		return "Scheduler unavailable"
	}
	err := cycles.Trigger()
	switch {
	case err == nil:
		return "Cycle started. Check /status for the result."
	case errors.Is(err, job.ErrCycleInFlight):
		return "A cycle is already running, try again later."
	default:
		return fmt.Sprintf("Could not start a cycle: %v", err)
	}
}

func statusReply(ctx context.Context, deps Deps) string {
	var b strings.Builder
	if deps.Cycles != nil {
		if deps.Cycles.Running() {
			b.WriteString("Cycle: running\n")
		} else {
			b.WriteString("Cycle: idle\n")
		}
		if last, ok := deps.Cycles.Last(); ok {
			b.WriteString("Last cycle: " + describeRun(last) + "\n")
		}
	}
	if deps.Threads != nil {
		left, err := deps.Threads.QuotaRemaining(ctx)
		switch {
		case err != nil:
			fmt.Fprintf(&b, "Quota: error (%v)\n", err)
		case left < 0:
			b.WriteString("Quota: unlimited\n")
		default:
			fmt.Fprintf(&b, "Quota: %d posts left this month\n", left)
		}
	}
	if deps.Rates != nil {
		for _, s := range deps.Rates.Snapshot() {
			fmt.Fprintf(&b, "%s: %d/%d per %s", s.Service, s.State.Count, s.Limit, s.Window)
			if s.Waiting {
				b.WriteString(" (waiting)")
			}
			b.WriteString("\n")
		}
	}
	if b.Len() == 0 {
		return "No status available"
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeRun(run job.LastRun) string {
	r := run.Result
	stamp := run.Finished.UTC().Format("Jan 2 15:04 MST")
	switch {
	case run.Error != "":
		return fmt.Sprintf("failed at %s: %s", stamp, run.Error)
	case r.Published:
		return fmt.Sprintf("published %d posts at %s", r.Posts, stamp)
	case r.Skipped != "":
		return fmt.Sprintf("skipped (%s) at %s", r.Skipped, stamp)
	default:
		return "finished at " + stamp
	}
}

// historyReply lists the newest entries first.
func historyReply(entries []ledger.Entry) string {
	if len(entries) == 0 {
		return "No threads published in the last 48h"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d threads in the last 48h:", len(entries))
	for i, e := range entries {
		if i == historyLimit {
			fmt.Fprintf(&b, "\n...and %d more", len(entries)-historyLimit)
			break
		}
		fmt.Fprintf(&b, "\n- %s: %d posts", e.Timestamp.UTC().Format("Jan 2 15:04"), len(e.Fingerprints))
		if len(e.Influencers) > 0 {
			b.WriteString(", " + strings.Join(e.Influencers, " "))
		}
	}
	return b.String()
}
