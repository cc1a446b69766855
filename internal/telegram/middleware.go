package telegram

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

type handlerFunc func(ctx context.Context, req *request) (string, error)

type middleware func(next handlerFunc) handlerFunc

func chain(h handlerFunc, m ...middleware) handlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func mwTimeout(d time.Duration) middleware {
	return func(next handlerFunc) handlerFunc {
		return func(ctx context.Context, req *request) (string, error) {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func mwPanicRecover() middleware {
	return func(next handlerFunc) handlerFunc {
		return func(ctx context.Context, req *request) (reply string, err error) {
			defer func() {
				if r := recover(); r != nil {
					req.log.Error().
						Interface("panic", r).
						Str("stack", string(debug.Stack())).
						Msg("panic recovered")
					reply = ""
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func mwRequestLog() middleware {
	return func(next handlerFunc) handlerFunc {
		return func(ctx context.Context, req *request) (string, error) {
			start := time.Now()
			reply, err := next(ctx, req)
			d := time.Since(start)

			ev := req.log.Debug()
			if err != nil {
				ev = req.log.Warn().Err(err)
			} else if d >= 750*time.Millisecond {
				// Slow successful requests stay visible at INFO.
				ev = req.log.Info()
			}
			ev.Dur("dur", d).Msg("command handled")
			return reply, err
		}
	}
}

func requestLogger(log zerolog.Logger, req *request) zerolog.Logger {
	return log.With().
		Str("rid", req.id).
		Str("cmd", req.name).
		Int64("chat_id", req.msg.ChatID).
		Int("thread_id", req.msg.ThreadID).
		Int64("from_id", req.msg.FromID).
		Logger()
}
