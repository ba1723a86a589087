// Package storage provides the bot's settings store.
//
// It persists:
//   - Settings (SCRAPE_CHANNEL, SELECT_CHANNEL)
//   - Audit log appends (operator actions)
package storage
