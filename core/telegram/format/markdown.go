// Package format escapes text for Telegram parse modes.
package format

import (
	"fmt"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

var (
	v1Replacer = newReplacer("_*`[")
	v2Replacer = newReplacer(`\_*[]()~` + "`" + `>#+-=|{}.!`)
	// Inside pre and code entities only ` and \ are special.
	v2CodeReplacer = newReplacer("`\\")
	// Inside the (...) part of a link only ) and \ are special.
	v2LinkReplacer = newReplacer(`)\`)
)

func newReplacer(specials string) *strings.Replacer {
	pairs := make([]string, 0, 2*len(specials))
	for _, r := range specials {
		pairs = append(pairs, string(r), `\`+string(r))
	}
	return strings.NewReplacer(pairs...)
}

// EscapeMarkdown escapes text for MarkdownV1 or V2. For V2, entityType
// "pre" or "code" and "text_link" select the narrower escaping Telegram
// expects inside those entities.
func EscapeMarkdown(text string, version int, entityType string) (string, error) {
	switch version {
	case MarkdownV1:
		return v1Replacer.Replace(text), nil
	case MarkdownV2:
		switch entityType {
		case "pre", "code":
			return v2CodeReplacer.Replace(text), nil
		case "text_link":
			return v2LinkReplacer.Replace(text), nil
		}
		return v2Replacer.Replace(text), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// MDV2 escapes text for MarkdownV2 outside any entity.
func MDV2(text string) string {
	return v2Replacer.Replace(text)
}
