package main

import (
	"context"
	"strings"

	"mangabot/internal/app"
)

type commandContext struct {
	configFlag *string
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil || strings.TrimSpace(*c.configFlag) == "" {
		return defaultConfigPath
	}
	return strings.TrimSpace(*c.configFlag)
}

// withOneshot opens the store (and Telegram when opt.Send) for one command.
func (c *commandContext) withOneshot(ctx context.Context, opt app.OneshotOptions, fn func(*app.Oneshot) error) error {
	o, err := app.OpenOneshot(ctx, c.configPath(), opt)
	if err != nil {
		return err
	}
	defer o.Close()
	return fn(o)
}
