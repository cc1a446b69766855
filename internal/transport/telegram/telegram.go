// Package telegram implements the transport adapter on telebot.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"motivbot/internal/transport"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// SendRatePerSec throttles outbound sends so a burst of due jobs
	// cannot trip Telegram's flood limits. Default 1/s.
	SendRatePerSec int
}

type Adapter struct {
	cfg Config
	log zerolog.Logger

	bot *tele.Bot
	out atomic.Value // stores (chan<- transport.Message)

	// pollStart/pollStop wrap bot.Start/bot.Stop so shutdown paths can
	// be exercised without a live poller.
	pollStart func()
	pollStop  func()

	runMu   sync.Mutex
	running bool
	stopBot func() // per-run, calls pollStop at most once

	limiter *rate.Limiter

	// dropped counts updates discarded because the consumer lagged
	// behind the poll loop; reported periodically, not per update.
	dropped uint64
	stopRep chan struct{}
}

func New(cfg Config, log zerolog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		// telebot calls are not context-aware; the client timeout is
		// what bounds a hung API call.
		Client: &http.Client{Timeout: 30 * time.Second},
	})
	if err != nil {
		return nil, err
	}

	rps := cfg.SendRatePerSec
	if rps <= 0 {
		rps = 1
	}
	a := &Adapter{
		cfg:       cfg,
		log:       log.With().Str("comp", "telegram").Logger(),
		bot:       b,
		pollStart: b.Start,
		pollStop:  b.Stop,
		limiter:   rate.NewLimiter(rate.Limit(rps), rps),
	}
	var nilOut chan<- transport.Message
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Chat == nil {
			return nil
		}
		a.deliver(transport.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			ThreadID:     m.ThreadID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			Text:         m.Text,
			IsGroup:      m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
		})
		return nil
	})
}

func (a *Adapter) deliver(m transport.Message) {
	v := a.out.Load()
	out, _ := v.(chan<- transport.Message)
	if out == nil {
		return
	}
	select {
	case out <- m:
	default:
		atomic.AddUint64(&a.dropped, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Message) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.stopRep = make(chan struct{})
	stopRep := a.stopRep
	// telebot's Stop blocks when the poller is not running, so the ctx
	// watcher and Stop() must never both reach it.
	var stopOnce sync.Once
	stopBot := func() { stopOnce.Do(a.pollStop) }
	a.stopBot = stopBot
	a.runMu.Unlock()

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopRep:
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.dropped, 0); n > 0 {
					a.log.Warn().Uint64("count", n).Int("chan_cap", cap(out)).Msg("incoming updates dropped (channel full)")
				}
			}
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			stopBot()
		case <-stopRep:
			// Stop() owns shutdown; exit so the goroutine does not
			// outlive the run.
		}
	}()

	go func() {
		a.log.Info().Msg("polling started")
		a.pollStart() // blocks until Stop()
		a.log.Info().Msg("polling stopped")
	}()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	wasRunning := a.running
	a.running = false
	stopRep := a.stopRep
	a.stopRep = nil
	stopBot := a.stopBot
	a.stopBot = nil
	var nilOut chan<- transport.Message
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || stopBot == nil {
		return nil
	}
	close(stopRep)
	// telebot Stop is expected to be fast; run it async just in case.
	done := make(chan struct{})
	go func() {
		stopBot()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn().Msg("telegram stop timed out")
	case <-time.After(2 * time.Second):
		a.log.Warn().Msg("telegram stop grace elapsed")
	}
	return nil
}

// BotName returns the bot's username, known after NewBot's getMe.
func (a *Adapter) BotName() string {
	if a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

func (a *Adapter) ChatInfo(ctx context.Context, chatID int64) (transport.ChatInfo, error) {
	if err := ctx.Err(); err != nil {
		return transport.ChatInfo{}, err
	}
	chat, err := a.bot.ChatByID(chatID)
	if err != nil {
		return transport.ChatInfo{}, err
	}
	title := chat.Title
	if title == "" {
		title = strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	}
	return transport.ChatInfo{ID: chat.ID, Type: string(chat.Type), Title: title}, nil
}

func (a *Adapter) IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	member, err := a.bot.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
	if err != nil {
		return false, err
	}
	return member.Role == tele.Creator || member.Role == tele.Administrator, nil
}
