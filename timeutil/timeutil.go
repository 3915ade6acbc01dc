// Package timeutil provides UTC and India Standard Time clock helpers.
package timeutil

import "time"

// IST is Asia/Kolkata, or a fixed +05:30 zone when the tz database is
// unavailable.
var IST = loadIST()

func loadIST() *time.Location {
	if loc, err := time.LoadLocation("Asia/Kolkata"); err == nil {
		return loc
	}
	return time.FixedZone("IST", 5*60*60+30*60)
}

// Layouts used in notifications.
const (
	// ISTDisplayLayout renders like "19-10-2026 03:04 PM".
	ISTDisplayLayout = "02-01-2006 03:04 PM"
	// ISTStampLayout renders like "2026-10-19 15:04:05".
	ISTStampLayout = "2006-01-02 15:04:05"
)

// Clock returns the current time. time.Now satisfies it.
type Clock func() time.Time

func UTCNow() time.Time { return time.Now().UTC() }

func ISTNow() time.Time { return time.Now().In(IST) }

// InIST converts t to IST.
func InIST(t time.Time) time.Time { return t.In(IST) }
