package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Category classifies a notice. Free-form classifier output resolves through
// ParseCategory; unrecognized values fall back to CategoryAnnouncement.
type Category string

const (
	CategoryAnnouncement  Category = "announcement"
	CategoryHackathon     Category = "hackathon"
	CategoryJobPosting    Category = "job_posting"
	CategoryShortlisting  Category = "shortlisting"
	CategoryUpdate        Category = "update"
	CategoryWebinar       Category = "webinar"
	CategoryReminder      Category = "reminder"
	CategoryInternshipNOC Category = "internship_noc"
)

var knownCategories = map[Category]bool{
	CategoryAnnouncement:  true,
	CategoryHackathon:     true,
	CategoryJobPosting:    true,
	CategoryShortlisting:  true,
	CategoryUpdate:        true,
	CategoryWebinar:       true,
	CategoryReminder:      true,
	CategoryInternshipNOC: true,
}

// ParseCategory resolves a free-form category string to a known value,
// defaulting to announcement.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if knownCategories[c] {
		return c
	}
	return CategoryAnnouncement
}

// Notice is one general announcement. Notices are immutable once stored;
// the fingerprint is the duplicate-detection key.
type Notice struct {
	ID          int64
	Fingerprint string
	Title       string
	Body        string
	Category    Category
	Source      string
	Author      string
	Deadline    string
	Links       []string
	Students    StudentSet // shortlisting and internship_noc only
	Delivery    DeliveryState
	ReceivedAt  time.Time
	CreatedAt   time.Time
}

// NoticeFingerprint derives the content fingerprint two identical notices
// collapse on: a hash of the normalized title, category and source. Exact
// match only, by design.
func NoticeFingerprint(title string, category Category, source string) string {
	h := sha256.Sum256([]byte(normalize(title) + "|" + string(category) + "|" + normalize(source)))
	return hex.EncodeToString(h[:])
}

// normalize lowercases and collapses runs of whitespace to single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
