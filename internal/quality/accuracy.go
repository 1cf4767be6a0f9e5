package quality

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

var (
	// A letter scale must touch the number ("$50k"); a spaced letter is the
	// next word, as in "$50,000 K-12". Spelled-out scales may follow a space.
	moneyRe   = regexp.MustCompile(`\$\s?(\d[\d,]*(?:\.\d+)?)(?:(mm|MM|[kKmM]|bn|BN)\b|\s?((?i:million|thousand|billion))\b)?`)
	bareNumRe = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	percentRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s?(?:%|percent\b)`)
)

// leadingFiller are sentence-initial words dropped from program phrases.
var leadingFiller = map[string]bool{
	"our": true, "the": true, "this": true, "your": true, "a": true, "an": true,
	"their": true, "my": true, "its": true, "with": true, "through": true,
	"dear": true, "hi": true, "hello": true,
}

func programPattern(keywords []string) *regexp.Regexp {
	if len(keywords) == 0 {
		return nil
	}
	alts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		alts = append(alts, regexp.QuoteMeta(strings.ToLower(k)))
	}
	// One to five capitalized words followed by a program keyword.
	return regexp.MustCompile(`\b(?:[A-Z][\w'’&\-]*\s+){1,5}(?i:` + strings.Join(alts, "|") + `)s?\b`)
}

// checkAccuracy cross-checks figures and named programs in the body against
// the organization record. Anything the record cannot support is a violation.
func (v *Validator) checkAccuracy(body string, org model.OrganizationRecord) []model.Violation {
	var out []model.Violation
	add := func(rule, msg string) {
		out = append(out, model.Violation{Kind: model.ViolationAccuracy, Rule: rule, Message: msg})
	}

	recordText := recordText(org)
	known := recordAmounts(org)
	for _, m := range moneyRe.FindAllStringSubmatch(body, -1) {
		amt, ok := parseAmount(m[1], moneyScale(m))
		if !ok {
			continue
		}
		if !containsAmount(known, amt) {
			add("accuracy.money", fmt.Sprintf("Figure %s does not match the organization data", strings.TrimSpace(m[0])))
		}
	}

	knownPct := recordPercents(recordText)
	for _, m := range percentRe.FindAllStringSubmatch(body, -1) {
		p, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if !containsAmount(knownPct, p) {
			add("accuracy.percent", fmt.Sprintf("Percentage %s does not match the organization data", strings.TrimSpace(m[0])))
		}
	}

	if v.programRe != nil {
		lowerRecord := strings.ToLower(recordText)
		seen := make(map[string]bool)
		for _, m := range v.programRe.FindAllString(body, -1) {
			name := trimFiller(m)
			key := strings.ToLower(name)
			if len(strings.Fields(name)) < 2 || seen[key] {
				continue
			}
			seen[key] = true
			if !strings.Contains(lowerRecord, key) {
				add("accuracy.program", fmt.Sprintf("%q is not mentioned in the organization data", name))
			}
		}
	}

	if v.rules.Accuracy.RequireOrgName && org.Name != "" &&
		!strings.Contains(strings.ToLower(body), strings.ToLower(strings.TrimSpace(org.Name))) {
		add("accuracy.org_name", fmt.Sprintf("Organization name %q is not mentioned", org.Name))
	}
	return out
}

func recordText(org model.OrganizationRecord) string {
	var b strings.Builder
	for _, f := range org.Fields() {
		b.WriteString(f.Value)
		b.WriteByte('\n')
	}
	return b.String()
}

// recordAmounts collects every money figure in the record. Bare numbers in
// the tuition field count as money too ("50000", "45,000-52,000").
func recordAmounts(org model.OrganizationRecord) []float64 {
	var out []float64
	for _, m := range moneyRe.FindAllStringSubmatch(recordText(org), -1) {
		if amt, ok := parseAmount(m[1], moneyScale(m)); ok {
			out = append(out, amt)
		}
	}
	for _, m := range bareNumRe.FindAllString(org.Tuition, -1) {
		if amt, ok := parseAmount(m, ""); ok {
			out = append(out, amt)
		}
	}
	// "$45k" in the record should match "$45,000" in the body and vice versa.
	lower := strings.ToLower(org.Tuition)
	if strings.Contains(lower, "k") {
		for _, m := range bareNumRe.FindAllString(org.Tuition, -1) {
			if amt, ok := parseAmount(m, "k"); ok {
				out = append(out, amt)
			}
		}
	}
	return out
}

func recordPercents(text string) []float64 {
	var out []float64
	for _, m := range percentRe.FindAllStringSubmatch(text, -1) {
		if p, err := strconv.ParseFloat(m[1], 64); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// moneyScale returns whichever scale group of a moneyRe match was set.
func moneyScale(m []string) string {
	if m[2] != "" {
		return m[2]
	}
	return m[3]
}

// parseAmount converts "50,000" with an optional scale suffix to a number.
func parseAmount(num, suffix string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(suffix) {
	case "k", "thousand":
		f *= 1e3
	case "m", "mm", "million":
		f *= 1e6
	case "billion", "bn":
		f *= 1e9
	}
	return f, true
}

// containsAmount matches within half a percent so "$1.2 million" matches
// "$1,200,000" without admitting a different figure.
func containsAmount(known []float64, v float64) bool {
	for _, k := range known {
		if k == v || (k != 0 && math.Abs(k-v)/math.Abs(k) < 0.005) {
			return true
		}
	}
	return false
}

// trimFiller drops leading articles, greetings, and possessives
// ("Lakeside's") so only the program's own name is checked.
func trimFiller(phrase string) string {
	words := strings.Fields(phrase)
	for len(words) > 0 {
		w := strings.ToLower(words[0])
		if !leadingFiller[w] && !strings.HasSuffix(w, "'s") && !strings.HasSuffix(w, "’s") {
			break
		}
		words = words[1:]
	}
	return strings.Join(words, " ")
}
