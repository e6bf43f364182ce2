package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Student identifies one selected student. Company is only populated on
// internship NOC notices, where entries are grouped per company.
type Student struct {
	Name       string `json:"name"`
	Enrollment string `json:"enrollment,omitempty"`
	Company    string `json:"company,omitempty"`
}

// Key returns the identity used to de-duplicate students across merges:
// the enrollment number when present, otherwise the name.
func (s Student) Key() string {
	if s.Enrollment != "" {
		return s.Enrollment
	}
	return s.Name
}

// StudentSet is an ordered set of students. Order is first-appearance and
// is preserved across merges; the set never shrinks.
type StudentSet []Student

// Union merges other into the set, skipping students whose Key is already
// present. It returns the merged set and the students that were newly added.
func (ss StudentSet) Union(other StudentSet) (merged StudentSet, added StudentSet) {
	seen := make(map[string]bool, len(ss))
	merged = make(StudentSet, len(ss), len(ss)+len(other))
	copy(merged, ss)
	for _, s := range ss {
		seen[s.Key()] = true
	}
	for _, s := range other {
		key := s.Key()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, s)
		added = append(added, s)
	}
	return merged, added
}

func (ss StudentSet) Value() (driver.Value, error) {
	if ss == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(ss)
}

func (ss *StudentSet) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*ss = nil
		return nil
	case []byte:
		return json.Unmarshal(v, ss)
	case string:
		return json.Unmarshal([]byte(v), ss)
	default:
		return fmt.Errorf("scan student set: unsupported type %T", src)
	}
}

// PlacementOffer is one announced placement, keyed by the natural identity
// (company, role, announcement date). Repeated reports of the same offer
// merge into one record.
type PlacementOffer struct {
	ID          int64
	Company     string
	Role        string
	AnnouncedOn string // announcement batch date, YYYY-MM-DD
	Package     string
	Students    StudentSet

	// Source provenance.
	EmailSubject string
	EmailSender  string

	Delivery DeliveryState

	// PendingDelta accumulates update merges that have not been delivered
	// on every configured channel yet, so a sweep after a crash can still
	// announce "N new students" instead of resending the full list.
	PendingDelta *OfferDelta

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OfferDelta describes what an update merge changed.
type OfferDelta struct {
	AddedStudents  StudentSet `json:"added_students,omitempty"`
	PackageChanged bool       `json:"package_changed,omitempty"`
	OldPackage     string     `json:"old_package,omitempty"`
	NewPackage     string     `json:"new_package,omitempty"`
}

// Empty reports whether the delta carries no change worth notifying about.
func (d *OfferDelta) Empty() bool {
	return d == nil || (len(d.AddedStudents) == 0 && !d.PackageChanged)
}

// Merge folds a newer delta into d, keeping the oldest original package and
// the union of added students.
func (d *OfferDelta) Merge(next *OfferDelta) *OfferDelta {
	if d == nil {
		return next
	}
	if next == nil {
		return d
	}
	merged, _ := d.AddedStudents.Union(next.AddedStudents)
	out := &OfferDelta{
		AddedStudents:  merged,
		PackageChanged: d.PackageChanged || next.PackageChanged,
		OldPackage:     d.OldPackage,
		NewPackage:     next.NewPackage,
	}
	if !d.PackageChanged {
		out.OldPackage = next.OldPackage
	}
	if !next.PackageChanged {
		out.NewPackage = d.NewPackage
	}
	return out
}
