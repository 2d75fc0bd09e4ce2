// Package logx configures mangabot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller, color on a TTY)
//   - File output JSON-structured
//   - An optional Telegram sink (min-level + rate limiting)
package logx
