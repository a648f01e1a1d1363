package onboard

import "time"

// BirthDateLayout is the wire format for collected birth dates.
const BirthDateLayout = "2006-01-02"

// Age computes whole years elapsed between a collected birth date and
// now. The second return is false when the value does not parse or lies
// in the future.
func Age(birthDate string, now time.Time) (int, bool) {
	born, err := time.Parse(BirthDateLayout, birthDate)
	if err != nil {
		return 0, false
	}
	if born.After(now) {
		return 0, false
	}
	years := now.Year() - born.Year()
	// Birthday not yet reached this year.
	if now.Month() < born.Month() ||
		(now.Month() == born.Month() && now.Day() < born.Day()) {
		years--
	}
	if years < 0 {
		return 0, false
	}
	return years, true
}
