package router

import (
	"html"
	"sort"
	"strings"
	"unicode"

	kit "birdrelay/internal/transport"
)

// helpText renders help in Telegram HTML parse mode.
func (m *Manager) helpText(args []string) string {
	if len(args) > 0 {
		word := sanitizeTelegramCommand(strings.TrimPrefix(args[0], "/"))
		if c, ok := m.lookup(word); ok {
			return commandHelpHTML(*c)
		}
		return "❓ <b>Unknown command</b>\nType <code>/help</code> for the list."
	}

	m.mu.RLock()
	cmds := append([]Command(nil), m.ordered...)
	m.mu.RUnlock()
	sortCommands(cmds)

	lines := []string{"📚 <b>Commands</b>", "Type <code>/help &lt;cmd&gt;</code> for details.", ""}
	for _, c := range cmds {
		prefix := "• "
		if c.Access == AccessOwnerOnly {
			prefix = "• 🔒 "
		}
		line := prefix + "<code>/" + html.EscapeString(c.Name) + "</code>"
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + html.EscapeString(d)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func commandHelpHTML(c Command) string {
	lines := []string{"📚 <b>Help</b> <code>/" + html.EscapeString(c.Name) + "</code>"}
	if d := strings.TrimSpace(c.Description); d != "" {
		lines = append(lines, html.EscapeString(d))
	}
	if c.Access == AccessOwnerOnly {
		lines = append(lines, "🔒 <i>Owners only</i>")
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		lines = append(lines, "", "<b>Usage</b>", "<code>"+html.EscapeString(u)+"</code>")
	}
	if len(c.Aliases) > 0 {
		as := make([]string, 0, len(c.Aliases))
		for _, a := range c.Aliases {
			if sa := sanitizeTelegramCommand(a); sa != "" {
				as = append(as, "<code>/"+html.EscapeString(sa)+"</code>")
			}
		}
		if len(as) > 0 {
			lines = append(lines, "", "<b>Shortcut</b> "+strings.Join(as, ", "))
		}
	}
	return strings.Join(lines, "\n")
}

// sortCommands puts owner-only commands last, alphabetical within groups.
func sortCommands(cmds []Command) {
	sort.SliceStable(cmds, func(i, j int) bool {
		oi, oj := cmds[i].Access == AccessOwnerOnly, cmds[j].Access == AccessOwnerOnly
		if oi != oj {
			return !oi
		}
		return cmds[i].Name < cmds[j].Name
	})
}

// sanitizeTelegramCommand converts a name into a Telegram bot command.
// Telegram command names are restricted to [a-z0-9_]{1,32}.
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == '/' || unicode.IsSpace(r):
			if b.Len() > 0 && !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = strings.TrimRight(("cmd_" + out)[:min(32, len(out)+4)], "_")
	}
	return out
}

// buildMenuCommands lists every command once for the Telegram command menu.
func buildMenuCommands(cmds []Command) []kit.BotCommand {
	cp := append([]Command(nil), cmds...)
	sortCommands(cp)
	out := make([]kit.BotCommand, 0, len(cp))
	for _, c := range cp {
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if desc == "" {
			desc = c.Name
		}
		if c.Access == AccessOwnerOnly {
			desc = "🔒 " + desc
		}
		if len(desc) > 256 {
			desc = desc[:256]
		}
		out = append(out, kit.BotCommand{Command: c.Name, Description: desc})
		if len(out) >= 100 {
			break
		}
	}
	return out
}
