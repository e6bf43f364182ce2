package gemini

import "fmt"

// classificationPrompt classifies a placement-cell email and extracts the
// structured fields in a single round trip. The model must answer with raw
// JSON (markdown fences tolerated).
const classificationPrompt = `You are an assistant that reads emails sent to a college placement mailing list and turns them into structured records.

Classify the email as exactly one of:

1. "placement_offer" - a final selection announcement: named students have been
   placed/hired at a company, usually with a CTC/package. Respond with:
   {"kind": "placement_offer", "company": "...", "role": "...", "package": "...",
    "announced_on": "YYYY-MM-DD", "students": [{"name": "...", "enrollment": "..."}]}
   Use the email's own date for announced_on when one is stated, otherwise leave it empty.

2. "notice" - any other relevant item for students: announcement, hackathon,
   job_posting, shortlisting, update, webinar, reminder or internship_noc.
   Respond with:
   {"kind": "notice", "title": "...", "content": "...", "type": "<one of the types above>",
    "source": "...", "deadline": "ISO timestamp or empty", "links": ["..."],
    "students": [{"name": "...", "enrollment": "...", "company": "..."}]}
   Include students only for shortlisting and internship_noc; for internship_noc
   also include each student's company. Keep the title under 100 characters and
   summarize the key information in content.

3. "not_relevant" - spam, promotions, or anything outside the above. Respond with:
   {"kind": "not_relevant", "reason": "..."}

Privacy rules: never copy forwarding headers, email addresses or phone numbers
into any field; student entries carry name and enrollment number only.

Return ONLY the raw JSON object, no explanations.

Email Subject: %s
Email Body: %s`

func buildPrompt(subject, body string) string {
	return fmt.Sprintf(classificationPrompt, subject, body)
}
