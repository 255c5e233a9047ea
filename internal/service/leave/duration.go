package leave

import (
	"strconv"
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

const (
	minutesPerHour = 60
	secondsPerDay  = 24 * 60 * 60
)

// DateOf strips the time of day, keeping the calendar date t carries in its
// own location, and returns it at 00:00 UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the inclusive number of calendar days from start to end.
func DaysBetween(start, end time.Time) (int, error) {
	s, e := DateOf(start), DateOf(end)
	if e.Before(s) {
		return 0, &leave.RangeError{
			Field: "end_date",
			Start: s.Format(time.DateOnly),
			End:   e.Format(time.DateOnly),
			Err:   leave.ErrInvalidRange,
		}
	}
	// Both are UTC midnights; time.Duration would overflow past ~292 years.
	return int((e.Unix()-s.Unix())/secondsPerDay) + 1, nil
}

// HoursBetween returns the hours between two HH:MM clock times on the same
// day. An unparseable input or an end before the start yields zero and a
// *leave.RangeError; the range never wraps past midnight.
func HoursBetween(startTime, endTime string) (decimal.Decimal, error) {
	startMin, okStart := clockMinutes(startTime)
	endMin, okEnd := clockMinutes(endTime)
	if !okStart || !okEnd || endMin < startMin {
		return decimal.Zero, &leave.RangeError{
			Field: "end_time",
			Start: startTime,
			End:   endTime,
			Err:   leave.ErrInvalidTimeRange,
		}
	}
	return decimal.NewFromInt(int64(endMin - startMin)).Div(decimal.NewFromInt(minutesPerHour)), nil
}

func clockMinutes(s string) (int, bool) {
	if !validator.IsValidClock(s) {
		return 0, false
	}
	h, _ := strconv.Atoi(s[:2])
	m, _ := strconv.Atoi(s[3:])
	return h*60 + m, true
}

// ClassifyDuration returns the quantity request consumes: hours when the leave
// type allows hourly leave and the request is an hour-mode request, days
// otherwise.
func ClassifyDuration(request leave.LeaveRequest, def leave.LeaveTypeDefinition) (leave.Duration, error) {
	if def.AllowHourly && request.IsHourly() {
		hours, err := HoursBetween(*request.StartTime, *request.EndTime)
		if err != nil {
			return leave.Duration{}, err
		}
		return leave.Hours(hours), nil
	}

	days, err := DaysBetween(request.StartDate, request.EndDate)
	if err != nil {
		return leave.Duration{}, err
	}
	return leave.Days(int64(days)), nil
}

// ClassifyTiming compares startDate with today at day granularity.
func ClassifyTiming(today, startDate time.Time) leave.Timing {
	t, s := DateOf(today), DateOf(startDate)
	switch {
	case s.Before(t):
		return leave.TimingBackdated
	case s.After(t):
		return leave.TimingAdvance
	default:
		return leave.TimingCurrent
	}
}
