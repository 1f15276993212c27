package service

import (
	"fmt"
	"strings"
	"time"

	"ihire-proctoring/backend/internal/proctoring/domain"
	"ihire-proctoring/backend/internal/proctoring/repository"
)

// StatisticsFilter builds a repository filter from the statistics parameters. Dates are RFC 3339
// or YYYY-MM-DD; a date-only endDate covers the whole day. Empty values do not filter.
func StatisticsFilter(sessionID, userEmail, startDate, endDate string) (repository.Filter, error) {
	f := repository.Filter{
		SessionID: strings.TrimSpace(sessionID),
		UserEmail: strings.TrimSpace(userEmail),
	}
	if v := strings.TrimSpace(startDate); v != "" {
		from, err := parseDate(v, false)
		if err != nil {
			return f, fmt.Errorf("%w: invalid startDate %q", domain.ErrValidation, v)
		}
		f.CreatedFrom = &from
	}
	if v := strings.TrimSpace(endDate); v != "" {
		to, err := parseDate(v, true)
		if err != nil {
			return f, fmt.Errorf("%w: invalid endDate %q", domain.ErrValidation, v)
		}
		f.CreatedTo = &to
	}
	return f, nil
}

func parseDate(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
