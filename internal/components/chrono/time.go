package chrono

import (
	"time"
)

// TimeAPI is the interface that anything depending on the system clock should use.
type TimeAPI interface {
	// Now returns the current time in the location the clock was created with.
	Now() time.Time
	Location() *time.Location
}

// StandardTime is the standard implementation of TimeAPI using the standard library.
type StandardTime struct {
	location *time.Location
}

// NewStandardTime is the constructor of StandardTime, a nil location means time.Local.
func NewStandardTime(location *time.Location) StandardTime {
	if location == nil {
		location = time.Local
	}
	return StandardTime{location: location}
}

// LoadStandardTime creates a StandardTime from an IANA zone name, an empty
// name or "Local" gives the machine's local zone.
func LoadStandardTime(name string) (StandardTime, error) {
	if name == "" || name == "Local" {
		return NewStandardTime(time.Local), nil
	}
	location, err := time.LoadLocation(name)
	if err != nil {
		return StandardTime{}, err
	}
	return NewStandardTime(location), nil
}

func (s StandardTime) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardTime) Location() *time.Location {
	return s.location
}

// FixedTime is a TimeAPI that always returns the same instant.
type FixedTime struct {
	Instant time.Time
}

func (f FixedTime) Now() time.Time {
	return f.Instant
}

func (f FixedTime) Location() *time.Location {
	return f.Instant.Location()
}

// Yesterday returns midnight of the calendar day before `now`, in now's location.
func Yesterday(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()-1, 0, 0, 0, 0, now.Location())
}
