package otrs

import (
	"fmt"
	"regexp"
	"time"
)

// TimeLayout is the OTRS date-time format, "yyyy-mm-dd hh:mm:ss".
const TimeLayout = "2006-01-02 15:04:05"

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)

// IsValidDate reports whether s is a real calendar date in TimeLayout.
func IsValidDate(s string) bool {
	if !datePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse(TimeLayout, s)
	return err == nil
}

// Add1Second returns the date one second after s. Dates carry no zone and are
// treated as UTC, so the result never shifts by DST.
func Add1Second(s string) (string, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t.Add(time.Second).Format(TimeLayout), nil
}
