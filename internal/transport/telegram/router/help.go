package router

import (
	"sort"
	"strings"
)

// helpText renders help in Telegram Markdown.
func (m *CommandManager) helpText(args []string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(args) > 0 {
		name := strings.ToLower(strings.TrimPrefix(args[0], "/"))
		c, ok := m.byName[name]
		if !ok {
			return "❓ Unknown command. Type /help for the list."
		}
		lines := []string{"📚 *Help* /" + c.Route}
		if d := strings.TrimSpace(c.Description); d != "" {
			lines = append(lines, d)
		}
		if c.Access == AccessOwnerOnly {
			lines = append(lines, "🔒 _owner only_")
		}
		if u := strings.TrimSpace(c.Usage); u != "" {
			lines = append(lines, "", "*Usage*", "`"+u+"`")
		}
		if len(c.Aliases) > 0 {
			al := make([]string, 0, len(c.Aliases))
			for _, a := range c.Aliases {
				al = append(al, "/"+a)
			}
			lines = append(lines, "", "*Aliases* "+strings.Join(al, ", "))
		}
		return strings.Join(lines, "\n")
	}

	cmds := append([]Command(nil), m.cmds...)
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Route < cmds[j].Route })
	lines := []string{"📚 *Commands*", "Type `/help <command>` for details.", ""}
	for _, c := range cmds {
		line := "• /" + c.Route
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + d
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
