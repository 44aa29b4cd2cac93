package sntp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"i4.energy/across/espgw/at"
)

// TimeRecord is a calendar time as reported by the module, already shifted
// to the timezone it was configured with. Weekday runs from 1 (Monday) to
// 7 (Sunday).
type TimeRecord struct {
	Year    int
	Month   int
	Day     int
	Weekday int
	Hour    int
	Minute  int
	Second  int
}

// IsZero reports whether r has never been filled in.
func (r TimeRecord) IsZero() bool {
	return r == TimeRecord{}
}

// Time converts r to a time.Time in a fixed zone tzHours east of UTC.
func (r TimeRecord) Time(tzHours int) time.Time {
	name := fmt.Sprintf("UTC%+d", tzHours)
	if tzHours == 0 {
		name = "UTC"
	}
	zone := time.FixedZone(name, tzHours*60*60)
	return time.Date(r.Year, time.Month(r.Month), r.Day, r.Hour, r.Minute, r.Second, 0, zone)
}

func (r TimeRecord) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", r.Year, r.Month, r.Day, r.Hour, r.Minute, r.Second)
}

var weekdays = map[string]int{
	"Mon": 1, "Tue": 2, "Wed": 3, "Thu": 4, "Fri": 5, "Sat": 6, "Sun": 7,
}

var months = map[string]int{
	"Jan": 1, "Feb": 2, "Mar": 3, "Apr": 4, "May": 5, "Jun": 6,
	"Jul": 7, "Aug": 8, "Sep": 9, "Oct": 10, "Nov": 11, "Dec": 12,
}

// ParseTime parses a +CIPSNTPTIME line such as
//
//	+CIPSNTPTIME:Tue Mar  5 14:30:02 2024
//
// The prefix is optional and fields may be separated by runs of spaces.
func ParseTime(line string) (TimeRecord, error) {
	if _, after, found := strings.Cut(line, at.SntpTimePrefix); found {
		line = after
	}

	fields := strings.Fields(line)
	if len(fields) != 5 {
		return TimeRecord{}, fmt.Errorf("%w: expected 5 fields, got %d in %q", ErrMalformedTime, len(fields), line)
	}

	var r TimeRecord
	var ok bool
	if r.Weekday, ok = weekdays[fields[0]]; !ok {
		return TimeRecord{}, fmt.Errorf("%w: weekday %q", ErrUnknownName, fields[0])
	}
	if r.Month, ok = months[fields[1]]; !ok {
		return TimeRecord{}, fmt.Errorf("%w: month %q", ErrUnknownName, fields[1])
	}

	var err error
	if r.Day, err = parseField("day", fields[2], 1, 31); err != nil {
		return TimeRecord{}, err
	}

	clock := strings.Split(fields[3], ":")
	if len(clock) != 3 {
		return TimeRecord{}, fmt.Errorf("%w: time of day %q", ErrMalformedTime, fields[3])
	}
	if r.Hour, err = parseField("hour", clock[0], 0, 23); err != nil {
		return TimeRecord{}, err
	}
	if r.Minute, err = parseField("minute", clock[1], 0, 59); err != nil {
		return TimeRecord{}, err
	}
	// 60 allows for a leap second.
	if r.Second, err = parseField("second", clock[2], 0, 60); err != nil {
		return TimeRecord{}, err
	}
	if r.Year, err = parseField("year", fields[4], 1970, 9999); err != nil {
		return TimeRecord{}, err
	}

	return r, nil
}

func parseField(name, s string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrMalformedTime, name, s)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %s %d out of range", ErrMalformedTime, name, n)
	}
	return n, nil
}
