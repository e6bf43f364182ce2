package domain

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type NoticeTestSuite struct {
	suite.Suite
}

func TestNoticeTestSuite(t *testing.T) {
	suite.Run(t, new(NoticeTestSuite))
}

func (s *NoticeTestSuite) TestParseCategory_KnownValues() {
	s.Equal(CategoryShortlisting, ParseCategory("shortlisting"))
	s.Equal(CategoryInternshipNOC, ParseCategory("internship_noc"))
	s.Equal(CategoryReminder, ParseCategory("  Reminder "))
}

func (s *NoticeTestSuite) TestParseCategory_UnknownDefaultsToAnnouncement() {
	s.Equal(CategoryAnnouncement, ParseCategory(""))
	s.Equal(CategoryAnnouncement, ParseCategory("memo"))
}

func (s *NoticeTestSuite) TestFingerprint_NormalizesCaseAndWhitespace() {
	a := NoticeFingerprint("Resume   Submission Deadline", CategoryReminder, "TPC Office")
	b := NoticeFingerprint("resume submission deadline", CategoryReminder, "tpc   office")

	s.Equal(a, b)
}

func (s *NoticeTestSuite) TestFingerprint_DiffersByCategory() {
	a := NoticeFingerprint("Campus drive", CategoryAnnouncement, "TPC")
	b := NoticeFingerprint("Campus drive", CategoryUpdate, "TPC")

	s.NotEqual(a, b)
}

func (s *NoticeTestSuite) TestFingerprint_DiffersBySource() {
	a := NoticeFingerprint("Campus drive", CategoryAnnouncement, "TPC")
	b := NoticeFingerprint("Campus drive", CategoryAnnouncement, "Dean Office")

	s.NotEqual(a, b)
}

func (s *NoticeTestSuite) TestFingerprint_ExactMatchOnly() {
	// A reworded title is a different notice, even if semantically the same.
	a := NoticeFingerprint("Resume deadline extended", CategoryUpdate, "TPC")
	b := NoticeFingerprint("Deadline for resumes extended", CategoryUpdate, "TPC")

	s.NotEqual(a, b)
}
