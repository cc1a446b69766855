// Package telegram turns inbound chat updates into admin commands. It
// parses the "/name@bot args" line, resolves the caller's group rank
// when a destination command needs it, and replies with either the
// confirmation text or the failure detail.
package telegram

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"motivbot/internal/command"
	"motivbot/internal/transport"
)

const (
	handlerTimeout = 30 * time.Second
	// rank lookups are a network round trip, kept short so a slow
	// Telegram API cannot stall the update loop worker.
	rankLookupTimeout = 5 * time.Second
)

type request struct {
	id   string
	name string
	args string
	msg  transport.Message
	log  zerolog.Logger
}

type Router struct {
	log     zerolog.Logger
	adapter transport.Adapter
	core    *command.Core
	// botName strips the /cmd@botname suffix in groups. May be empty.
	botName string
}

func NewRouter(adapter transport.Adapter, core *command.Core, botName string, log zerolog.Logger) *Router {
	return &Router{
		log:     log.With().Str("comp", "router").Logger(),
		adapter: adapter,
		core:    core,
		botName: strings.TrimPrefix(botName, "@"),
	}
}

// Run consumes updates until ctx is done or the channel closes.
// Handlers run inline; the adapter already fans updates into a buffered
// channel, and command work is store-bound and cheap.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Message) {
	r.log.Info().Msg("command router started")
	defer r.log.Info().Msg("command router stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-updates:
			if !ok {
				return
			}
			r.handle(ctx, msg)
		}
	}
}

func (r *Router) handle(ctx context.Context, msg transport.Message) {
	name, args, ok := r.parseCommand(msg.Text)
	if !ok {
		return
	}

	req := &request{
		id:   newReqID(),
		name: name,
		args: args,
		msg:  msg,
	}
	req.log = requestLogger(r.log, req)

	final := chain(r.execute,
		mwPanicRecover(),
		mwRequestLog(),
		mwTimeout(handlerTimeout),
	)

	reply, err := final(ctx, req)
	if err != nil {
		reply = errorReply(err)
	}
	if reply == "" {
		return
	}
	target := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if serr := r.adapter.SendText(ctx, target, reply, &transport.SendOptions{DisablePreview: true}); serr != nil {
		req.log.Warn().Err(serr).Msg("reply send failed")
	}
}

func (r *Router) execute(ctx context.Context, req *request) (string, error) {
	caller := command.Caller{
		ID:      req.msg.FromID,
		ChatID:  req.msg.ChatID,
		IsGroup: req.msg.IsGroup,
	}
	if req.msg.IsGroup && isDestinationCommand(req.name) {
		caller.IsGroupAdmin = r.lookupGroupAdmin(ctx, req)
	}
	return r.core.Execute(ctx, caller, req.name, req.args)
}

// lookupGroupAdmin is best-effort: a failed lookup means no delegation,
// and the fixed admin path in the core still applies.
func (r *Router) lookupGroupAdmin(ctx context.Context, req *request) bool {
	cctx, cancel := context.WithTimeout(ctx, rankLookupTimeout)
	defer cancel()
	ok, err := r.adapter.IsChatAdmin(cctx, req.msg.ChatID, req.msg.FromID)
	if err != nil {
		req.log.Warn().Err(err).Msg("group rank lookup failed")
		return false
	}
	return ok
}

// parseCommand splits "/name@bot the rest" into name and raw args.
// Returns ok=false for plain text and for commands addressed to a
// different bot.
func (r *Router) parseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head := text[1:]
	if i := strings.IndexAny(head, " \t\n"); i >= 0 {
		args = strings.TrimSpace(head[i+1:])
		head = head[:i]
	}
	if i := strings.IndexByte(head, '@'); i >= 0 {
		mention := head[i+1:]
		head = head[:i]
		if r.botName != "" && !strings.EqualFold(mention, r.botName) {
			return "", "", false
		}
	}
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), args, true
}

func isDestinationCommand(name string) bool {
	return name == "set_chat" || name == "set_topic"
}

// errorReply renders a command failure for the chat. Kinds carry their
// own user-safe detail; only the prefix differs.
func errorReply(err error) string {
	cmdErr, ok := err.(*command.Error)
	if !ok {
		return "⚠️ Something went wrong, please try again."
	}
	switch cmdErr.Kind {
	case command.KindUnauthorized:
		return "🚫 " + cmdErr.Detail
	case command.KindValidation, command.KindUnknown:
		return "⚠️ " + cmdErr.Detail
	case command.KindNotConfigured:
		return "ℹ️ " + cmdErr.Detail
	default:
		return "❌ " + cmdErr.Detail
	}
}

func newReqID() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b[:])
}
