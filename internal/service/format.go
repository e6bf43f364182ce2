package service

import (
	"fmt"
	"strings"

	"placement_notifier/internal/domain"
)

// Message formatting for the notification channels. Output is plain
// structured text with lightweight **emphasis** markup; each channel adapter
// converts or strips it for its own dialect.

// FormatNewOffer renders the first announcement of a placement offer.
func FormatNewOffer(offer *domain.PlacementOffer) string {
	var b strings.Builder

	fmt.Fprintf(&b, "**Placement Update: %s**\n\n", offer.Company)
	fmt.Fprintf(&b, "%d %s been placed at %s.\n\n",
		len(offer.Students), pluralHave(len(offer.Students)), offer.Company)

	if offer.Package != "" {
		fmt.Fprintf(&b, "Role: %s (%s)\n", offer.Role, offer.Package)
	} else {
		fmt.Fprintf(&b, "Role: %s\n", offer.Role)
	}

	b.WriteString("\nCongratulations to all selected!")
	writeProvenance(&b, offer.EmailSender, offer.AnnouncedOn)
	return b.String()
}

// FormatOfferUpdate renders a merge that grew an existing offer: only the
// delta is announced, never a full resend of the earlier students.
func FormatOfferUpdate(offer *domain.PlacementOffer, delta *domain.OfferDelta) string {
	var b strings.Builder

	if n := len(delta.AddedStudents); n > 0 {
		fmt.Fprintf(&b, "**Placement Update: %s (+%d)**\n\n", offer.Company, n)
	} else {
		fmt.Fprintf(&b, "**Placement Update: %s**\n\n", offer.Company)
	}

	if n := len(delta.AddedStudents); n > 0 {
		fmt.Fprintf(&b, "%d new %s added at %s.\n", n, pluralStudents(n), offer.Company)
		fmt.Fprintf(&b, "Total placements at %s: %d\n\n", offer.Company, len(offer.Students))
		b.WriteString("Newly selected:\n")
		for _, s := range delta.AddedStudents {
			writeStudentLine(&b, s)
		}
	}

	if delta.PackageChanged {
		fmt.Fprintf(&b, "\nPackage revised to %s for %s.\n", delta.NewPackage, offer.Role)
	}

	b.WriteString("\nCongratulations to the newly selected!")
	writeProvenance(&b, offer.EmailSender, offer.AnnouncedOn)
	return b.String()
}

// FormatNotice renders a notice by category. internship_noc groups student
// entries by company.
func FormatNotice(notice *domain.Notice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", notice.Title)

	switch notice.Category {
	case domain.CategoryAnnouncement, domain.CategoryUpdate:
		b.WriteString("\n")
		b.WriteString(notice.Body)
		b.WriteString("\n")

	case domain.CategoryShortlisting:
		b.WriteString("\n**Shortlisting Update**\n")
		if notice.Source != "" {
			fmt.Fprintf(&b, "**Source:** %s\n", notice.Source)
		}
		if n := len(notice.Students); n > 0 {
			fmt.Fprintf(&b, "\n**Total Shortlisted:** %d\n", n)
			b.WriteString("Congratulations to the following students:\n")
			for _, s := range notice.Students {
				writeStudentLine(&b, s)
			}
		}
		b.WriteString("\n")
		b.WriteString(notice.Body)
		b.WriteString("\n")

	case domain.CategoryInternshipNOC:
		b.WriteString("\n**Internship NOC List**\n")
		fmt.Fprintf(&b, "**Total Students:** %d\n\n", len(notice.Students))
		for _, group := range groupByCompany(notice.Students) {
			fmt.Fprintf(&b, "**%s** (%d %s)\n", group.company, len(group.students), pluralStudents(len(group.students)))
			for _, s := range group.students {
				writeStudentLine(&b, s)
			}
			b.WriteString("\n")
		}
		b.WriteString(notice.Body)
		b.WriteString("\n")

	case domain.CategoryReminder:
		b.WriteString("\n**Reminder**\n\n")
		b.WriteString(notice.Body)
		b.WriteString("\n")

	default:
		fmt.Fprintf(&b, "\n**%s**\n\n", categoryHeading(notice.Category))
		b.WriteString(notice.Body)
		b.WriteString("\n")
	}

	if notice.Deadline != "" {
		fmt.Fprintf(&b, "\n**Deadline:** %s\n", notice.Deadline)
	}

	if len(notice.Links) > 0 {
		b.WriteString("\n**Links:**\n")
		for i, link := range notice.Links {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "- %s\n", link)
		}
	}

	writeProvenance(&b, notice.Author, notice.ReceivedAt.UTC().Format("January 2, 2006"))
	return b.String()
}

type companyGroup struct {
	company  string
	students []domain.Student
}

// groupByCompany buckets students per company preserving first-appearance
// order. Students without a company land in "General".
func groupByCompany(students domain.StudentSet) []companyGroup {
	index := map[string]int{}
	var groups []companyGroup
	for _, s := range students {
		company := s.Company
		if company == "" {
			company = "General"
		}
		i, ok := index[company]
		if !ok {
			i = len(groups)
			index[company] = i
			groups = append(groups, companyGroup{company: company})
		}
		groups[i].students = append(groups[i].students, s)
	}
	return groups
}

func writeStudentLine(b *strings.Builder, s domain.Student) {
	if s.Enrollment != "" {
		fmt.Fprintf(b, "- %s (%s)\n", s.Name, s.Enrollment)
	} else {
		fmt.Fprintf(b, "- %s\n", s.Name)
	}
}

func writeProvenance(b *strings.Builder, author, on string) {
	if author == "" && on == "" {
		return
	}
	b.WriteString("\n")
	if author != "" {
		fmt.Fprintf(b, "*Posted by:* %s\n", author)
	}
	if on != "" {
		fmt.Fprintf(b, "*On:* %s", on)
	}
}

func categoryHeading(c domain.Category) string {
	words := strings.Split(string(c), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func pluralHave(n int) string {
	if n == 1 {
		return "student has"
	}
	return "students have"
}

func pluralStudents(n int) string {
	if n == 1 {
		return "student"
	}
	return "students"
}
