package decode

import (
	"regexp"
	"strings"
)

// cleaners run in order over free text that held no JSON object.
var cleaners = []func(string) string{
	StripReasoning,
	unfence,
	dropPreamble,
	unquote,
}

// Clean turns a free-text reply into the bare answer a curator should see:
// reasoning markup, code fences, a leading "Here is the result:" and one pair
// of wrapping quotes are removed.
func Clean(text string) string {
	for _, clean := range cleaners {
		text = strings.TrimSpace(clean(text))
	}
	return text
}

const reasoningTags = `(?:think|thinking|reasoning|reflection)`

var (
	reasoningRe = regexp.MustCompile(`(?is)<` + reasoningTags + `>.*?</` + reasoningTags + `>`)
	// A model cut off mid-thought leaves an unclosed tag; drop everything after it.
	openReasoningRe = regexp.MustCompile(`(?is)<` + reasoningTags + `>.*$`)
)

// StripReasoning removes reasoning markup emitted by thinking models.
func StripReasoning(text string) string {
	text = reasoningRe.ReplaceAllString(text, "")
	return strings.TrimSpace(openReasoningRe.ReplaceAllString(text, ""))
}

// fenceLineRe matches a fence line, with or without an info string.
var fenceLineRe = regexp.MustCompile("(?m)^\\s*```[A-Za-z]*\\s*$")

// unfence removes fence lines left around prose, including an opening fence
// whose closing one was truncated.
func unfence(text string) string {
	return fenceLineRe.ReplaceAllString(text, "")
}

// preambleRe only matches at the start and needs a colon, so prose that merely
// begins with "Here" survives.
var preambleRe = regexp.MustCompile(`(?i)^(?:(?:certainly|sure|of course)[,.!]?\s+)?` +
	`(?:here(?:'s| is)(?: the)?|(?:the )?(?:final )?)\s*` +
	`(?:requested |final )?(?:json(?: object)?|result|answer|output|translation)\s*:`)

func dropPreamble(text string) string {
	if loc := preambleRe.FindStringIndex(text); loc != nil {
		return text[loc[1]:]
	}
	return text
}

var quotePairs = map[rune]rune{
	'"':  '"',
	'\'': '\'',
	'«':  '»',
	'“':  '”',
	'‘':  '’',
	'„':  '“',
}

func unquote(text string) string {
	runes := []rune(text)
	if len(runes) < 2 {
		return text
	}
	if closing, ok := quotePairs[runes[0]]; ok && runes[len(runes)-1] == closing {
		return string(runes[1 : len(runes)-1])
	}
	return text
}
