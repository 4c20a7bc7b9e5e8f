// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"image"
	"time"
)

// Record layouts shared by every store.
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04:05"
	DateTimeLayout = DateLayout + " " + TimeLayout

	StatusPresent = "Present"
)

// Person is a roster row. Immutable once loaded.
type Person struct {
	ID          int    // roll number
	DisplayName string // shown on frames and in mark responses
	Metadata    string // branch
}

// Label renders the on-frame caption for an accepted face.
func (p Person) Label() string {
	return fmt.Sprintf("%d - %s", p.ID, p.DisplayName)
}

// Region is the bounding box of a detected face.
type Region struct {
	X, Y, W, H int
}

// Rect converts the region to an image rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Identification is one (region, person, confidence) tuple from the recognizer.
// Lower confidence means a closer match.
type Identification struct {
	Region     Region
	PersonID   int
	Confidence float64
}

// DetectionEvent is the per-cycle outcome of one identification.
type DetectionEvent struct {
	PersonID   int
	Confidence float64
	ObservedAt time.Time
	Accepted   bool
}

// CacheEntry is the last successful mark for a person.
// LastMarkedDate always equals LastMarkedAt formatted with DateLayout.
type CacheEntry struct {
	PersonID       int
	LastMarkedAt   time.Time
	LastMarkedDate string
}

// NewCacheEntry builds an entry whose date is derived from at.
func NewCacheEntry(personID int, at time.Time) CacheEntry {
	return CacheEntry{PersonID: personID, LastMarkedAt: at, LastMarkedDate: at.Format(DateLayout)}
}

// AttendanceRecord is one durable attendance row. Never updated or deleted.
type AttendanceRecord struct {
	PersonID    int
	DisplayName string
	Date        string // YYYY-MM-DD
	Time        string // HH:MM:SS
	Status      string
}

// NewRecord stamps a Present record for p at now.
func NewRecord(p Person, now time.Time) AttendanceRecord {
	return AttendanceRecord{
		PersonID:    p.ID,
		DisplayName: p.DisplayName,
		Date:        now.Format(DateLayout),
		Time:        now.Format(TimeLayout),
		Status:      StatusPresent,
	}
}

// Timestamp parses Date and Time in loc.
func (r AttendanceRecord) Timestamp(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateTimeLayout, r.Date+" "+r.Time, loc)
}

// Frame is one image pulled from a frame source.
type Frame struct {
	Seq        uint64
	Image      image.Image
	CapturedAt time.Time
}

// AnnotatedFrame is an encoded frame ready for viewers.
type AnnotatedFrame struct {
	Seq        uint64
	JPEG       []byte
	Detections []DetectionEvent
}
