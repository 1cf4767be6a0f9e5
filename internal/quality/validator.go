// Package quality scores drafts with deterministic rules: tone deny-list,
// fact cross-check, structure, and length. It makes no external calls.
package quality

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Options are the length and subject bounds from configuration.
type Options struct {
	MinWords      int
	MaxWords      int
	MaxSubjectLen int
}

// Validator applies Rules to drafts. It is safe for concurrent use.
type Validator struct {
	rules     Rules
	opts      Options
	deny      []phrase
	greetings []*regexp.Regexp
	closings  []*regexp.Regexp
	programRe *regexp.Regexp
}

type phrase struct {
	text string
	re   *regexp.Regexp
}

// NewValidator compiles rules for repeated use.
func NewValidator(rules Rules, opts Options) *Validator {
	if opts.MaxSubjectLen <= 0 {
		opts.MaxSubjectLen = 80
	}
	v := &Validator{rules: rules, opts: opts}
	for _, p := range rules.Tone.Deny {
		if p = strings.TrimSpace(p); p != "" {
			v.deny = append(v.deny, phrase{text: p, re: wordRe(p)})
		}
	}
	for _, g := range rules.Structure.Greetings {
		v.greetings = append(v.greetings, wordRe(g))
	}
	for _, c := range rules.Structure.Closings {
		v.closings = append(v.closings, wordRe(c))
	}
	v.programRe = programPattern(rules.Accuracy.ProgramKeywords)
	return v
}

// wordRe matches p case-insensitively on word boundaries, with any run of
// whitespace between its words.
func wordRe(p string) *regexp.Regexp {
	words := strings.Fields(strings.ToLower(p))
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b` + strings.Join(words, `\s+`) + `\b`)
}

// Validate scores d against org. It never fails.
func (v *Validator) Validate(d *model.Draft, org model.OrganizationRecord) model.ValidationResult {
	var subject, body string
	if d != nil {
		subject, body = d.Subject, d.Body
	}

	var out []model.Violation
	out = append(out, v.checkTone(subject, body)...)
	out = append(out, v.checkAccuracy(body, org)...)
	out = append(out, v.checkStructure(subject, body)...)

	words := len(strings.Fields(body))
	out = append(out, v.checkLength(words)...)

	return model.ValidationResult{
		Violations: out,
		Score:      v.score(out),
		WordCount:  words,
	}
}

func (v *Validator) score(violations []model.Violation) int {
	score := 100
	for _, vi := range violations {
		score -= v.penalty(vi.Kind)
	}
	return max(score, 0)
}

func (v *Validator) penalty(k model.ViolationKind) int {
	p := v.rules.Penalties
	switch k {
	case model.ViolationTone:
		return p.Tone
	case model.ViolationAccuracy:
		return p.Accuracy
	case model.ViolationStructure:
		return p.Structure
	case model.ViolationLength:
		return p.Length
	}
	return 0
}

// checkTone records one violation per deny-list match in subject or body.
func (v *Validator) checkTone(subject, body string) []model.Violation {
	var out []model.Violation
	text := subject + "\n" + body
	for _, p := range v.deny {
		for _, m := range p.re.FindAllString(text, -1) {
			out = append(out, model.Violation{
				Kind:    model.ViolationTone,
				Rule:    "tone.deny",
				Message: fmt.Sprintf("Presumptuous or blunt phrase %q; rephrase respectfully", strings.ToLower(m)),
			})
		}
	}
	return out
}

func (v *Validator) checkStructure(subject, body string) []model.Violation {
	var out []model.Violation
	add := func(rule, msg string) {
		out = append(out, model.Violation{Kind: model.ViolationStructure, Rule: rule, Message: msg})
	}

	switch n := utf8.RuneCountInString(strings.TrimSpace(subject)); {
	case n == 0:
		add("structure.subject_missing", "Missing subject line")
	case n > v.opts.MaxSubjectLen:
		add("structure.subject_length", fmt.Sprintf("Subject line too long (%d characters, max %d)", n, v.opts.MaxSubjectLen))
	}

	body = strings.TrimSpace(body)
	if body == "" {
		add("structure.body_missing", "Empty email body")
		return out
	}
	if !anyMatch(v.greetings, head(body, v.rules.Structure.GreetingWindow)) {
		add("structure.greeting", "Missing greeting line at the top of the email")
	}
	if !anyMatch(v.closings, tail(body, v.rules.Structure.ClosingWindow)) {
		add("structure.closing", "Missing closing or signature at the end of the email")
	}
	return out
}

func (v *Validator) checkLength(words int) []model.Violation {
	var msg string
	switch {
	case words < v.opts.MinWords:
		msg = fmt.Sprintf("Email too short (%d words, expected %d-%d)", words, v.opts.MinWords, v.opts.MaxWords)
	case v.opts.MaxWords > 0 && words > v.opts.MaxWords:
		msg = fmt.Sprintf("Email too long (%d words, expected %d-%d)", words, v.opts.MinWords, v.opts.MaxWords)
	default:
		return nil
	}
	return []model.Violation{{Kind: model.ViolationLength, Rule: "length.words", Message: msg}}
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// head returns at most n bytes from the start of s, cut on a rune boundary.
func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// tail returns at most n bytes from the end of s, cut on a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
