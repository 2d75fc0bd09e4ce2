package reminder

import (
	"html"
	"strconv"
	"strings"

	"mangabot/internal/schedule"
)

// Renderer turns a due item into message text.
type Renderer interface {
	Render(it schedule.Item) string
}

// RendererFor picks the renderer matching a Bot API parse mode
// ("Markdown", "MarkdownV2", "HTML"). Anything else gets legacy Markdown.
func RendererFor(parseMode string) Renderer {
	switch strings.ToLower(strings.TrimSpace(parseMode)) {
	case "markdownv2":
		return MarkdownV2Renderer{}
	case "html":
		return HTMLRenderer{}
	default:
		return MarkdownRenderer{}
	}
}

// markup is one parse mode's way of writing the shared layout.
type markup struct {
	bold   func(s string) string
	text   func(s string) string
	link   func(label, url string) string
}

func (m markup) render(it schedule.Item) string {
	var b strings.Builder
	b.WriteString("📢 ")
	b.WriteString(m.bold(m.text(it.Title)))
	b.WriteString("\n🗓 ")
	b.WriteString(m.text(cadenceLabel(it.Cadence)))
	b.WriteString(" @ ")
	if it.ReleaseTime != nil {
		b.WriteString(m.text(it.ReleaseTime.String()))
	} else {
		b.WriteString("anytime")
	}
	if c := strings.TrimSpace(it.Creator); c != "" {
		b.WriteString("\n👤 ")
		b.WriteString(m.bold(m.text("Owner:")))
		b.WriteString(" ")
		b.WriteString(m.text(c))
	}
	link := strings.TrimSpace(it.Link)
	if link == "" {
		link = "#"
	}
	b.WriteString("\n🔗 ")
	b.WriteString(m.link("Read now", link))
	return b.String()
}

func wrap(tag string) func(string) string {
	return func(s string) string { return tag + s + tag }
}

// MarkdownRenderer renders Telegram legacy Markdown:
//
//	📢 *Title*
//	🗓 Tuesday @ 18:00
//	👤 *Owner:* creator
//	🔗 [Read now](link)
type MarkdownRenderer struct{}

var legacyMarkdown = markup{
	bold: wrap("*"),
	text: EscapeMarkdown,
	link: func(label, url string) string {
		return "[" + label + "](" + strings.ReplaceAll(url, ")", "%29") + ")"
	},
}

func (MarkdownRenderer) Render(it schedule.Item) string { return legacyMarkdown.render(it) }

// MarkdownV2Renderer renders the same layout with MarkdownV2 escaping.
type MarkdownV2Renderer struct{}

var markdownV2 = markup{
	bold: wrap("*"),
	text: EscapeMarkdownV2,
	link: func(label, url string) string {
		return "[" + EscapeMarkdownV2(label) + "](" + markdownV2URL.Replace(url) + ")"
	},
}

func (MarkdownV2Renderer) Render(it schedule.Item) string { return markdownV2.render(it) }

// HTMLRenderer renders the layout as Telegram HTML.
type HTMLRenderer struct{}

var htmlMarkup = markup{
	bold: func(s string) string { return "<b>" + s + "</b>" },
	text: html.EscapeString,
	link: func(label, url string) string {
		return `<a href="` + html.EscapeString(url) + `">` + html.EscapeString(label) + "</a>"
	},
}

func (HTMLRenderer) Render(it schedule.Item) string { return htmlMarkup.render(it) }

func cadenceLabel(c schedule.Cadence) string {
	if c.IsInterval() {
		if c.EveryDays == 1 {
			return "Every day"
		}
		return "Every " + strconv.Itoa(c.EveryDays) + " days"
	}
	return c.Day.String()
}

var markdownEscaper = strings.NewReplacer(
	`_`, `\_`,
	`*`, `\*`,
	"`", "\\`",
	`[`, `\[`,
)

// EscapeMarkdown escapes the characters legacy Telegram Markdown treats as
// entity delimiters.
func EscapeMarkdown(s string) string { return markdownEscaper.Replace(s) }

var markdownV2Escaper = func() *strings.Replacer {
	var pairs []string
	for _, r := range "\\_*[]()~`>#+-=|{}.!" {
		pairs = append(pairs, string(r), `\`+string(r))
	}
	return strings.NewReplacer(pairs...)
}()

// Inside (...) of a MarkdownV2 link only ')' and '\' need escaping.
var markdownV2URL = strings.NewReplacer(`\`, `\\`, `)`, `\)`)

// EscapeMarkdownV2 escapes every MarkdownV2 reserved character.
func EscapeMarkdownV2(s string) string { return markdownV2Escaper.Replace(s) }
