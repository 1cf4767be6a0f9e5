package research

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9\-]+(?:\.[a-z0-9\-]+)*\.[a-z]{2,24}`)
	atRe    = regexp.MustCompile(`(?i)\s*[\[\(\{]\s*at\s*[\]\)\}]\s*`)
	dotRe   = regexp.MustCompile(`(?i)\s*[\[\(\{]\s*dot\s*[\]\)\}]\s*`)
	nameRe  = regexp.MustCompile(`\b[A-Z][a-zA-Z'’\-]+(?:[ \t]+[A-Z]\.)?(?:[ \t]+[A-Z][a-zA-Z'’\-]+){1,3}\b`)
)

// roles lists recognizable decision-maker titles, most specific first.
var roles = []string{
	"head of school",
	"head of upper school",
	"head of lower school",
	"director of admissions",
	"director of admission",
	"director of enrollment",
	"admissions director",
	"enrollment director",
	"dean of admissions",
	"dean of students",
	"assistant superintendent",
	"superintendent",
	"assistant principal",
	"vice principal",
	"principal",
	"headmaster",
	"headmistress",
	"executive director",
	"chief financial officer",
	"business manager",
	"director of finance",
	"president",
	"dean",
	"director",
	"admissions",
}

// nonNameWords are capitalized words that often precede an address but are
// not part of a person's name.
var nonNameWords = map[string]bool{
	"head": true, "school": true, "director": true, "admissions": true, "admission": true,
	"contact": true, "email": true, "phone": true, "office": true, "dean": true,
	"principal": true, "superintendent": true, "president": true, "enrollment": true,
	"executive": true, "assistant": true, "vice": true, "business": true, "manager": true,
	"finance": true, "students": true, "staff": true, "directory": true, "upper": true,
	"lower": true, "middle": true, "of": true, "the": true, "academy": true, "mail": true,
	"chief": true, "financial": true, "officer": true, "headmaster": true, "us": true,
	"our": true, "leadership": true, "team": true, "meet": true, "welcome": true,
}

// skipLocals are mailbox names that never reach a decision-maker.
var skipLocals = map[string]bool{
	"noreply": true, "no-reply": true, "donotreply": true, "do-not-reply": true,
	"webmaster": true, "postmaster": true, "abuse": true, "privacy": true,
}

// fileExts catch asset names such as logo@2x.png that look like addresses.
var fileExts = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "svg": true,
	"webp": true, "css": true, "js": true, "pdf": true,
}

// rawCandidate is an address found in text along with nearby context.
type rawCandidate struct {
	Email       string
	Name        string
	NameDerived bool
	Title       string
	Source      string
}

// deobfuscate rewrites "jane [at] school [dot] org" into a plain address.
func deobfuscate(text string) string {
	text = atRe.ReplaceAllString(text, "@")
	return dotRe.ReplaceAllString(text, ".")
}

// extractCandidates finds every usable address in a result and attaches the
// closest preceding name and role.
func extractCandidates(r SearchResult) []rawCandidate {
	text := deobfuscate(r.Text())
	locs := emailRe.FindAllStringIndex(text, -1)

	var out []rawCandidate
	seen := make(map[string]bool)
	for _, loc := range locs {
		email, ok := normalizeEmail(text[loc[0]:loc[1]])
		if !ok || seen[email] {
			continue
		}
		seen[email] = true

		ctx := contextWindow(text, loc[0], loc[1])
		c := rawCandidate{
			Email:  email,
			Title:  findRole(ctx),
			Name:   findName(text[windowStart(text, loc[0]):loc[0]]),
			Source: r.URL,
		}
		if c.Name == "" {
			c.Name = nameFromLocal(email)
			c.NameDerived = c.Name != ""
		}
		out = append(out, c)
	}
	return out
}

// normalizeEmail lowercases and validates an address.
func normalizeEmail(s string) (string, bool) {
	s = strings.ToLower(strings.Trim(s, ".,;:()<>[]\"'"))
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return "", false
	}
	local, domain, ok := strings.Cut(addr.Address, "@")
	if !ok || local == "" || skipLocals[local] {
		return "", false
	}
	tld := domain[strings.LastIndex(domain, ".")+1:]
	if fileExts[tld] {
		return "", false
	}
	return addr.Address, true
}

// windowStart returns the start of the up-to-three lines preceding pos.
func windowStart(text string, pos int) int {
	start := pos
	for lines := 0; start > 0 && lines < 3; {
		start--
		if text[start] == '\n' {
			lines++
		}
	}
	if pos-start > 240 {
		start = pos - 240
	}
	return start
}

// contextWindow is the text before an address plus the rest of its line.
func contextWindow(text string, from, to int) string {
	end := strings.IndexByte(text[to:], '\n')
	if end < 0 {
		end = len(text) - to
	}
	if end > 120 {
		end = 120
	}
	return text[windowStart(text, from):from] + " " + text[to:to+end]
}

// findRole returns the title-cased role mentioned closest to the end of ctx.
func findRole(ctx string) string {
	lower := strings.ToLower(ctx)
	best, bestPos := "", -1
	for _, role := range roles {
		if i := strings.LastIndex(lower, role); i > bestPos {
			// A longer, more specific role that overlaps wins ties.
			if bestPos >= 0 && i < bestPos+len(best) && len(role) < len(best) {
				continue
			}
			best, bestPos = role, i
		}
	}
	if bestPos < 0 {
		return ""
	}
	return titleCase(best)
}

// findName returns the last capitalized run of two or more words on a line
// once role and boilerplate words are trimmed from it.
func findName(before string) string {
	matches := nameRe.FindAllString(before, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if name := personWords(matches[i]); name != "" {
			return name
		}
	}
	return ""
}

// personWords drops leading role words ("Principal Jane Doe") and cuts at the
// next one ("Jane Doe Director"). Fewer than two words left yields "".
func personWords(s string) string {
	var kept []string
	for _, w := range strings.Fields(s) {
		if nonNameWords[strings.ToLower(strings.TrimSuffix(w, "."))] {
			if len(kept) > 0 {
				break
			}
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) < 2 {
		return ""
	}
	return strings.Join(kept, " ")
}

// nameFromLocal turns jane.doe@ or jane_doe@ into "Jane Doe".
func nameFromLocal(email string) string {
	local, _, _ := strings.Cut(email, "@")
	parts := strings.FieldsFunc(local, func(r rune) bool { return r == '.' || r == '_' || r == '-' })
	if len(parts) < 2 || len(parts) > 3 {
		return ""
	}
	for i, p := range parts {
		if len(p) < 2 || strings.IndexFunc(p, func(r rune) bool { return !unicode.IsLetter(r) }) >= 0 {
			return ""
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == "of" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// fold lowercases s and strips diacritics so "Lycée Français" compares equal
// to the ASCII spelling used in domain names.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
