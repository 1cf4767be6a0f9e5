package research

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Score components. A candidate from the organization's own institutional
// domain, found on its official site, with a name and a role, scores 100.
const (
	scoreBase              = 30
	scoreInstitutionMatch  = 30
	scoreDomainMatch       = 20
	scoreInstitutionalOnly = 5
	scoreFreeMail          = -10
	scoreOfficialSource    = 20
	scoreAggregatorSource  = 10
	scoreRole              = 10
	scoreName              = 10
)

var freeMail = map[string]bool{
	"gmail.com": true, "yahoo.com": true, "hotmail.com": true, "outlook.com": true,
	"aol.com": true, "icloud.com": true, "msn.com": true, "live.com": true,
}

// aggregators are directory sites that republish staff listings.
var aggregators = []string{
	"niche.com", "greatschools.org", "privateschoolreview.com", "publicschoolreview.com",
	"boardingschoolreview.com", "schooldigger.com", "usnews.com", "linkedin.com",
	"zoominfo.com", "rocketreach.co", "apollo.io", "signalhire.com", "contactout.com",
	"crunchbase.com", "nces.ed.gov", "facebook.com",
}

// genericNameWords never identify an organization in a domain on their own.
var genericNameWords = map[string]bool{
	"the": true, "and": true, "for": true, "school": true, "schools": true,
	"academy": true, "college": true, "university": true, "institute": true,
	"saint": true, "high": true, "middle": true, "elementary": true, "country": true,
	"public": true, "charter": true, "district": true, "center": true, "preparatory": true,
	"international": true, "christian": true, "day": true, "community": true,
}

// hostOf returns the lowercased host of a URL or bare domain without "www.".
func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// baseLabel is the leftmost label of a host: "lakeside" for lakeside.k12.wa.us.
func baseLabel(host string) string {
	label, _, _ := strings.Cut(host, ".")
	return label
}

// sameSite reports whether two hosts are equal or one is a subdomain of the other.
func sameSite(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.HasSuffix(a, "."+b) || strings.HasSuffix(b, "."+a)
}

// institutional reports whether host is on an education, nonprofit, or
// government TLD, including US k12 district domains.
func institutional(host string) bool {
	if strings.HasSuffix(host, ".edu") || strings.HasSuffix(host, ".org") || strings.HasSuffix(host, ".gov") {
		return true
	}
	if strings.Contains(host, ".k12.") || strings.Contains(host, ".edu.") || strings.Contains(host, ".ac.") {
		return true
	}
	return strings.HasPrefix(baseLabel(host), "k12") || strings.HasSuffix(baseLabel(host), "k12")
}

// nameTokens splits an organization name into folded words.
func nameTokens(name string) []string {
	return strings.FieldsFunc(fold(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchesName reports whether host plausibly belongs to the named organization:
// a distinctive name word appears in its base label, or the label starts with
// the name's initials.
func matchesName(host, name string) bool {
	label := strings.ReplaceAll(baseLabel(host), "-", "")
	if label == "" {
		return false
	}
	tokens := nameTokens(name)
	var initials strings.Builder
	for _, t := range tokens {
		if t != "the" && t != "of" && t != "and" && t != "for" && t != "at" {
			initials.WriteByte(t[0])
		}
		if len(t) > 3 && !genericNameWords[t] && strings.Contains(label, t) {
			return true
		}
	}
	acr := initials.String()
	return len(acr) >= 3 && strings.HasPrefix(label, acr)
}

// orgHost is the organization's own host when a website is known.
func orgHost(q Query) string {
	return hostOf(q.Website)
}

// domainScore rates how well an email domain matches the organization.
func domainScore(domain string, q Query) int {
	if freeMail[domain] {
		return scoreFreeMail
	}
	match := sameSite(domain, orgHost(q)) || matchesName(domain, q.Organization)
	inst := institutional(domain)
	switch {
	case match && inst:
		return scoreInstitutionMatch
	case match:
		return scoreDomainMatch
	case inst:
		return scoreInstitutionalOnly
	}
	return 0
}

// sourceKind classifies the page an address was found on.
func sourceKind(source string, q Query) model.SourceKind {
	host := hostOf(source)
	if host == "" {
		return model.SourceSearch
	}
	if sameSite(host, orgHost(q)) || (orgHost(q) == "" && matchesName(host, q.Organization) && !isAggregator(host)) {
		return model.SourceOfficial
	}
	if isAggregator(host) {
		return model.SourceAggregator
	}
	return model.SourceSearch
}

func isAggregator(host string) bool {
	for _, a := range aggregators {
		if sameSite(host, a) {
			return true
		}
	}
	return false
}

// scoreCandidate turns an extracted address into a scored Contact.
func scoreCandidate(c rawCandidate, q Query) model.Contact {
	_, domain, _ := strings.Cut(c.Email, "@")
	kind := sourceKind(c.Source, q)

	name := c.Name
	if name != "" && !c.NameDerived && isOrgName(name, q.Organization) {
		name = ""
	}

	score := scoreBase + domainScore(domain, q)
	switch kind {
	case model.SourceOfficial:
		score += scoreOfficialSource
	case model.SourceAggregator:
		score += scoreAggregatorSource
	}
	if c.Title != "" {
		score += scoreRole
	}
	if name != "" && !c.NameDerived {
		score += scoreName
	}

	return model.Contact{
		Name:       name,
		Email:      c.Email,
		Title:      c.Title,
		Source:     c.Source,
		SourceKind: kind,
		Confidence: max(0, min(100, score)),
	}
}

// isOrgName reports whether every word of name comes from the organization name.
func isOrgName(name, org string) bool {
	orgWords := make(map[string]bool)
	for _, t := range nameTokens(org) {
		orgWords[t] = true
	}
	for _, t := range nameTokens(name) {
		if !orgWords[t] {
			return false
		}
	}
	return true
}
