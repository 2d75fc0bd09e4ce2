package router

import (
	"strings"

	"github.com/google/uuid"
)

// newReqID is a short request id for log correlation.
func newReqID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// tokenizeCommandLine splits command text into tokens, honouring quotes
// and backslash escapes:
//
//	/items --all "two words"
func tokenizeCommandLine(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out   []string
		buf   strings.Builder
		inQ   bool
		qChar rune
		esc   bool
	)
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	for _, ch := range s {
		switch {
		case esc:
			buf.WriteRune(ch)
			esc = false
		case ch == '\\':
			esc = true
		case inQ:
			if ch == qChar {
				inQ = false
				continue
			}
			buf.WriteRune(ch)
		case ch == '"' || ch == '\'':
			inQ, qChar = true, ch
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		default:
			buf.WriteRune(ch)
		}
	}
	flush()
	return out
}

// parseFlags splits args into positionals and flags.
//
//	--k=v, --k v, --flag
//	-k=v, -k v, -abc (bools a, b, c)
func parseFlags(args []string) (pos []string, flags map[string]string, bools map[string]bool) {
	flags = map[string]string{}
	bools = map[string]bool{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		nextIsValue := i+1 < len(args) && !strings.HasPrefix(args[i+1], "-")
		switch {
		case strings.HasPrefix(a, "--") && len(a) > 2:
			key := a[2:]
			if eq := strings.IndexByte(key, '='); eq >= 0 {
				flags[key[:eq]] = key[eq+1:]
			} else if nextIsValue {
				flags[key] = args[i+1]
				i++
			} else {
				bools[key] = true
			}
		case strings.HasPrefix(a, "-") && len(a) > 1:
			key := a[1:]
			if eq := strings.IndexByte(key, '='); eq >= 0 {
				flags[key[:eq]] = key[eq+1:]
			} else if len(key) == 1 && nextIsValue {
				flags[key] = args[i+1]
				i++
			} else {
				for _, r := range key {
					bools[string(r)] = true
				}
			}
		default:
			pos = append(pos, a)
		}
	}
	return pos, flags, bools
}
