package tasklens

const (
	MaxTitleLength     = 500
	MaxNotesLength     = 50_000
	MaxPlaceNameLength = 100

	DefaultCreditIncrement = 0.5
	DefaultImportance      = 0.5
	DefaultDesiredCredits  = 1.0

	// DefaultLeadTimeMillis is 8 hours.
	DefaultLeadTimeMillis int64 = 8 * 60 * 60 * 1000

	// CreditsHalfLifeMillis is 7 days.
	CreditsHalfLifeMillis = 7.0 * 24 * 60 * 60 * 1000
)

const (
	minuteMillis int64 = 60 * 1000
	hourMillis         = 60 * minuteMillis
	dayMillis          = 24 * hourMillis
)

// IntervalMillis converts a repeat frequency into milliseconds. Months are 30 days and years are 365 days.
func IntervalMillis(frequency Frequency, interval int64) int64 {
	switch frequency {
	case FrequencyMinutes:
		return interval * minuteMillis
	case FrequencyHours:
		return interval * hourMillis
	case FrequencyDaily:
		return interval * dayMillis
	case FrequencyWeekly:
		return interval * 7 * dayMillis
	case FrequencyMonthly:
		return interval * 30 * dayMillis
	case FrequencyYearly:
		return interval * 365 * dayMillis
	}
	return 0
}
