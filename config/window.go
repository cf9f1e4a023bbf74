package config

import "time"

// PermitsAt reports whether capture is allowed at the given instant. Pure
// function of the entry and the timestamp; both window ends are inclusive.
func (c TimelapseConfig) PermitsAt(now time.Time) bool {
	if !c.permitsWeekday(now.Weekday()) {
		return false
	}

	tod := now.Hour()*3600 + now.Minute()*60 + now.Second()
	since := c.SinceTOD.Seconds()
	till := c.TillTOD.Seconds()

	if since <= till {
		return since <= tod && tod <= till
	}
	// window spans midnight, e.g. 22:00:00-02:00:00
	return tod >= since || tod <= till
}

func (c TimelapseConfig) permitsWeekday(day time.Weekday) bool {
	for _, d := range c.WeekDays {
		if d == day {
			return true
		}
	}
	return false
}
