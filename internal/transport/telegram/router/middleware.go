package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "mangabot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] is the outermost middleware.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger := log
					if req != nil && !req.Logger.IsZero() {
						logger = req.Logger
					}
					logger.Error("panic recovered", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			logger := log
			if !req.Logger.IsZero() {
				logger = req.Logger
			}
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)
			if err != nil {
				logger.Warn("command failed", logx.Duration("dur", d), logx.Err(err))
				return err
			}
			// Short successful commands stay at DEBUG.
			if d >= 750*time.Millisecond {
				logger.Info("command ok", logx.Duration("dur", d))
			} else {
				logger.Debug("command ok", logx.Duration("dur", d))
			}
			return nil
		}
	}
}

// MWReplyError tells the user a command failed, panics included when it
// wraps MWPanicRecover.
func MWReplyError() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			err := next(ctx, req)
			if err != nil && req.Sender != nil {
				_, _ = req.Sender.SendText(context.WithoutCancel(ctx), req.Chat, "❌ "+err.Error(), nil)
			}
			return err
		}
	}
}
