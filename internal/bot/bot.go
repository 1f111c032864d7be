// Package bot owns the command loop: long-poll the chat API, parse
// commands, hand tasks to the orchestrator.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mirrorleech/mirror_relay/internal/chat"
	"github.com/mirrorleech/mirror_relay/internal/chat/telegram"
	"github.com/mirrorleech/mirror_relay/internal/fetch"
	"github.com/mirrorleech/mirror_relay/internal/logctx"
	"github.com/mirrorleech/mirror_relay/internal/orchestrator"
	"github.com/mirrorleech/mirror_relay/internal/swarm"
	"github.com/mirrorleech/mirror_relay/internal/task"
)

const pollRetryDelay = 3 * time.Second

const helpText = `Send me something to fetch:
/mirror <url> - relay a direct download
/leech <magnet or .torrent url> - relay a swarm transfer
/cancel <task id> - cancel a running task`

// Bot wires incoming chat commands to the orchestrator.
type Bot struct {
	client        *telegram.Client
	orch          *orchestrator.Orchestrator
	engine        swarm.Engine
	httpClient    *http.Client
	defaultName   string
	maxParallel   int
	updateTimeout time.Duration
}

func New(client *telegram.Client, orch *orchestrator.Orchestrator, engine swarm.Engine, httpClient *http.Client, defaultName string, maxParallel int, updateTimeout time.Duration) *Bot {
	return &Bot{
		client:        client,
		orch:          orch,
		engine:        engine,
		httpClient:    httpClient,
		defaultName:   defaultName,
		maxParallel:   maxParallel,
		updateTimeout: updateTimeout,
	}
}

// Run long-polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	var offset int64

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := b.client.GetUpdates(ctx, offset, b.updateTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			logger.ErrorContext(ctx, "failed to get updates", "err", err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollRetryDelay):
			}

			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1

			if update.Message == nil || update.Message.Text == "" {
				continue
			}

			b.dispatch(ctx, update.Message)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, msg *telegram.IncomingMessage) {
	logger := logctx.LoggerFromContext(ctx)

	command, arg := parseCommand(msg.Text)
	channel := b.client.OpenChat(msg.Chat.ID)
	owner := ownerID(msg)

	switch command {
	case "/start", "/help":
		b.reply(ctx, channel, helpText)

	case "/mirror":
		if arg == "" {
			b.reply(ctx, channel, "Usage: /mirror <url>")

			return
		}

		src := fetch.NewDirectSource(b.httpClient, arg, b.defaultName)
		if _, err := b.orch.Submit(ctx, owner, task.SourceDirect, src, channel); err != nil {
			logger.ErrorContext(ctx, "failed to submit mirror task", "err", err)
		}

	case "/leech":
		if arg == "" {
			b.reply(ctx, channel, "Usage: /leech <magnet or .torrent url>")

			return
		}

		src := swarm.NewSource(b.engine, b.httpClient, arg, b.maxParallel)
		if _, err := b.orch.Submit(ctx, owner, task.SourceSwarm, src, channel); err != nil {
			logger.ErrorContext(ctx, "failed to submit leech task", "err", err)
		}

	case "/cancel":
		if arg == "" {
			b.reply(ctx, channel, "Usage: /cancel <task id>")

			return
		}

		b.reply(ctx, channel, cancelReply(b.orch.Cancel(arg, owner), arg))
	}
}

func (b *Bot) reply(ctx context.Context, channel chat.Channel, text string) {
	if _, err := channel.Reply(ctx, text); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to reply", "err", err)
	}
}

// parseCommand splits a message into its command and single argument. The
// "@botname" suffix Telegram appends in groups is stripped.
func parseCommand(text string) (command, arg string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", ""
	}

	command = strings.SplitN(fields[0], "@", 2)[0]

	if len(fields) > 1 {
		arg = fields[1]
	}

	return command, arg
}

func cancelReply(outcome task.CancelOutcome, taskID string) string {
	switch outcome {
	case task.CancelOK:
		return fmt.Sprintf("Cancelling task %s...", taskID)
	case task.CancelDenied:
		return "You can only cancel your own tasks."
	default:
		return fmt.Sprintf("No running task with id %s.", taskID)
	}
}

func ownerID(msg *telegram.IncomingMessage) int64 {
	if msg.From != nil {
		return msg.From.ID
	}

	return msg.Chat.ID
}
