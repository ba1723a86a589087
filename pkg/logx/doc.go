// Package logx configures birdrelay's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output either JSON-structured or the classic "[dd/mm/yyyy hh:mm:ss] msg" text layout
//   - An optional Telegram log chat sink (min-level + rate limiting)
package logx
