package writer

import (
	"fmt"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

const draftGuidelines = `You write cold outreach emails to senior administrators at schools and similar organizations.

Requirements:
1. Be respectful and professional. The reader is a busy senior administrator.
2. Use only the facts given in ORGANIZATION. Do not invent figures, programs, or events.
3. Follow the template's structure and guidelines.
4. Be humble and earnest. Never tell the reader what they must or should do.
5. Open with a greeting line and end with a closing and signature.
6. Keep the subject line under 80 characters.`

const draftFormat = `Respond exactly in this format:

SUBJECT: <subject line>
BODY:
<email body>`

const critiqueInstructions = `You review cold outreach emails before they are sent. Score the email on a 0-100 scale.

Check for:
1. Tone: presumptuous, commanding, or overly casual phrasing scores low.
2. Accuracy: every claim about the organization must be traceable to ORGANIZATION. Flag anything that is not, including invented figures or programs.
3. Professionalism and clarity.

Respond exactly in this format:
ISSUES: <problems found, or None>
TONE_SCORE: <0-100>
ACCURACY_SCORE: <0-100>
OVERALL_SCORE: <0-100>
SUGGESTIONS: <how to improve, or None>`

// draftShared is the batch-wide cacheable instruction block.
func draftShared(template string) string {
	return draftGuidelines + "\n\nTEMPLATE AND GUIDELINES:\n" + strings.TrimSpace(template)
}

func draftPrompt(in DraftInput) string {
	var b strings.Builder
	b.WriteString("ORGANIZATION:\n")
	b.WriteString(in.Organization.Summary())
	b.WriteString("\n\n")

	if in.Contact != nil && (in.Contact.Name != "" || in.Contact.Title != "") {
		fmt.Fprintf(&b, "RECIPIENT: %s", in.Contact.DisplayName())
		if in.Contact.Title != "" && in.Contact.Name != "" {
			fmt.Fprintf(&b, " (%s)", in.Contact.Title)
		}
		b.WriteString("\n\n")
	} else {
		b.WriteString("RECIPIENT: none found; use a generic greeting addressed to the organization's team\n\n")
	}

	if in.Attempt > 1 && strings.TrimSpace(in.Feedback) != "" {
		fmt.Fprintf(&b, "This is attempt %d. The previous draft was rejected.\n", in.Attempt)
		b.WriteString("FEEDBACK FROM PREVIOUS ATTEMPT (address every point):\n")
		b.WriteString(strings.TrimSpace(in.Feedback))
		b.WriteString("\n\n")
	}

	b.WriteString(draftFormat)
	return b.String()
}

func critiquePrompt(d *model.Draft, org model.OrganizationRecord) string {
	return fmt.Sprintf("ORGANIZATION:\n%s\n\nEMAIL SUBJECT: %s\n\nEMAIL BODY:\n%s",
		org.Summary(), d.Subject, d.Body)
}
