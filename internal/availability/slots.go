// Package availability generates candidate appointment slots within an open
// interval, optionally narrowed by a coarse time-of-day preference.
package availability

import "fmt"

type Preference string

const (
	PreferenceAny       Preference = "any"
	PreferenceMorning   Preference = "morning"
	PreferenceAfternoon Preference = "afternoon"
	PreferenceEvening   Preference = "evening"
)

// Preference windows in minutes since midnight, half-open.
const (
	morningStart = 6 * 60
	morningEnd   = 12 * 60
	afternoonEnd = 17 * 60
	eveningEnd   = 21 * 60
)

func ParsePreference(s string) (Preference, error) {
	switch Preference(s) {
	case "", PreferenceAny:
		return PreferenceAny, nil
	case PreferenceMorning, PreferenceAfternoon, PreferenceEvening:
		return Preference(s), nil
	}
	return "", fmt.Errorf("unknown time preference %q", s)
}

// Matches reports whether a slot starting at startMin falls inside the
// preference window.
func Matches(pref Preference, startMin int) bool {
	switch pref {
	case PreferenceMorning:
		return startMin >= morningStart && startMin < morningEnd
	case PreferenceAfternoon:
		return startMin >= morningEnd && startMin < afternoonEnd
	case PreferenceEvening:
		return startMin >= afternoonEnd && startMin < eveningEnd
	}
	return true
}

// CandidateSlots returns slot start times (minutes since midnight) in
// ascending order, stepping by slotMins from open. The last candidate is the
// latest start whose full duration still fits before close. Pure function of
// its inputs.
func CandidateSlots(open, close, slotMins int, pref Preference) []int {
	if slotMins <= 0 || close <= open {
		return nil
	}
	var starts []int
	for t := open; t+slotMins <= close; t += slotMins {
		if !Matches(pref, t) {
			continue
		}
		starts = append(starts, t)
	}
	return starts
}
