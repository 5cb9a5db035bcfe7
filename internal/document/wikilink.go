package document

import (
	"regexp"
	"strings"
)

var wikiLinkPattern = regexp.MustCompile(`(!?)\[\[([^\[\]\n]+?)\]\]`)

// NormalizeWikiLinks rewrites [[Target]], [[Target|Alias]],
// [[Target#Heading]] and ![[image.png]] into standard Markdown links whose
// destinations are wrapped in angle brackets so spaces survive parsing.
// Fenced and inline code is left untouched.
func NormalizeWikiLinks(body string) string {
	if !strings.Contains(body, "[[") {
		return body
	}

	var b strings.Builder
	b.Grow(len(body))

	inFence := false
	lines := strings.SplitAfter(body, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			b.WriteString(line)
			continue
		}
		if inFence {
			b.WriteString(line)
			continue
		}
		b.WriteString(rewriteOutsideCodeSpans(line))
	}
	return b.String()
}

func rewriteOutsideCodeSpans(line string) string {
	if !strings.Contains(line, "`") {
		return wikiLinkPattern.ReplaceAllStringFunc(line, convertWikiLink)
	}
	parts := strings.Split(line, "`")
	for i := 0; i < len(parts); i += 2 {
		parts[i] = wikiLinkPattern.ReplaceAllStringFunc(parts[i], convertWikiLink)
	}
	return strings.Join(parts, "`")
}

func convertWikiLink(match string) string {
	sub := wikiLinkPattern.FindStringSubmatch(match)
	embed := sub[1] == "!"
	inner := strings.TrimSpace(sub[2])

	target, alias, hasAlias := strings.Cut(inner, "|")
	target = strings.TrimSpace(target)
	alias = strings.TrimSpace(alias)

	if embed {
		// ![[image.png|300]] uses the alias slot for a size hint
		if !hasAlias || isNumeric(alias) {
			alias = ""
		}
		return "![" + escapeLinkText(alias) + "](<" + target + ">)"
	}

	if !hasAlias || alias == "" {
		alias = target
		if page, heading, ok := strings.Cut(target, "#"); ok {
			alias = strings.TrimSpace(page)
			if alias == "" {
				alias = strings.TrimSpace(heading)
			}
		}
	}
	return "[" + escapeLinkText(alias) + "](<" + target + ">)"
}

func escapeLinkText(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != 'x' {
			return false
		}
	}
	return true
}
