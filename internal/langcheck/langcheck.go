// Package langcheck verifies that translated text is written in the expected
// target language.
package langcheck

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// minCheckLength is the minimum rune count required to attempt detection.
// Shorter texts produce unreliable results and pass unchecked.
const minCheckLength = 20

// Verdict is the outcome of one check. It is informational and never changes a
// translation result.
type Verdict struct {
	Checked  bool   `json:"checked"`
	Expected string `json:"expected"`
	Detected string `json:"detected,omitempty"`
	Matches  bool   `json:"matches"`
	Reason   string `json:"reason,omitempty"`
}

// Languages the detector cannot reliably tell apart in latin script.
var compatible = map[string]string{
	"sr": "bcms",
	"hr": "bcms",
	"bs": "bcms",
	"nb": "no",
	"nn": "no",
	"no": "no",
}

// Checker wraps a lingua detector. Building the detector is expensive; reuse
// the instance.
type Checker struct {
	detector lingua.LanguageDetector
}

func New() *Checker {
	detector := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		Build()

	return &Checker{detector: detector}
}

// DetectISO returns the ISO 639-1 code of text's language.
func (c *Checker) DetectISO(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	lang, ok := c.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// Check reports whether text appears to be written in targetLang. Empty
// targets, short texts and texts of undeterminable language pass.
func (c *Checker) Check(text, targetLang string) Verdict {
	target := strings.ToLower(strings.TrimSpace(targetLang))
	v := Verdict{Expected: target, Matches: true}

	text = strings.TrimSpace(text)
	switch {
	case target == "":
		v.Reason = "no target language"
		return v
	case text == "":
		v.Matches = false
		v.Reason = "text is empty"
		return v
	case len([]rune(text)) < minCheckLength:
		v.Reason = "text too short to check"
		return v
	}

	detected, ok := c.DetectISO(text)
	if !ok {
		v.Reason = "language could not be determined"
		return v
	}

	v.Checked = true
	v.Detected = detected
	v.Matches = sameLanguage(detected, target)
	if !v.Matches {
		v.Reason = "expected " + target + " but detected " + detected
	}
	return v
}

func sameLanguage(a, b string) bool {
	if strings.EqualFold(a, b) {
		return true
	}
	ga, okA := compatible[a]
	gb, okB := compatible[b]
	return okA && okB && ga == gb
}
