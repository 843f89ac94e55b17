package events

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
)

const DefaultPageSize = 10

// Page is an offset window. Size 0 means no limit.
type Page struct {
	From int
	Size int
}

// Apply slices items to the window.
func Apply[T any](items []T, page Page) []T {
	if page.From >= len(items) {
		return []T{}
	}
	items = items[page.From:]
	if page.Size > 0 && page.Size < len(items) {
		items = items[:page.Size]
	}
	return items
}

// AdminFilters narrow the moderator search. Empty slices and nil times match everything.
type AdminFilters struct {
	Users      []string
	States     []State
	Categories []string
	RangeStart *time.Time
	RangeEnd   *time.Time
}

type SortOrder string

const (
	SortEventDate SortOrder = "EVENT_DATE"
	SortViews     SortOrder = "VIEWS"
)

// PublicFilters narrow the public search. Only PUBLISHED events are ever returned.
type PublicFilters struct {
	Text          string
	Categories    []string
	Paid          *bool
	RangeStart    *time.Time
	RangeEnd      *time.Time
	OnlyAvailable bool
	Sort          SortOrder
}

func ParsePage(values url.Values) (Page, error) {
	page := Page{From: 0, Size: DefaultPageSize}
	if raw := strings.TrimSpace(values.Get("from")); raw != "" {
		from, err := strconv.Atoi(raw)
		if err != nil || from < 0 {
			return page, apperr.Invalid("from", "must be a non-negative integer")
		}
		page.From = from
	}
	if raw := strings.TrimSpace(values.Get("size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return page, apperr.Invalid("size", "must be a positive integer")
		}
		page.Size = size
	}
	return page, nil
}

func ParseAdminFilters(values url.Values) (AdminFilters, Page, error) {
	filters := AdminFilters{
		Users:      splitList(values, "users"),
		Categories: splitList(values, "categories"),
	}
	for _, raw := range splitList(values, "states") {
		state, err := ParseState(raw)
		if err != nil {
			return filters, Page{}, err
		}
		filters.States = append(filters.States, state)
	}

	var err error
	if filters.RangeStart, err = parseDateTime("rangeStart", values.Get("rangeStart")); err != nil {
		return filters, Page{}, err
	}
	if filters.RangeEnd, err = parseDateTime("rangeEnd", values.Get("rangeEnd")); err != nil {
		return filters, Page{}, err
	}
	if err := checkRange(filters.RangeStart, filters.RangeEnd); err != nil {
		return filters, Page{}, err
	}

	page, err := ParsePage(values)
	return filters, page, err
}

// ParsePublicFilters reads the public search query. Without a range the
// search starts at now.
func ParsePublicFilters(values url.Values, now time.Time) (PublicFilters, Page, error) {
	filters := PublicFilters{
		Text:       strings.TrimSpace(values.Get("text")),
		Categories: splitList(values, "categories"),
		Sort:       SortEventDate,
	}

	if raw := strings.TrimSpace(values.Get("paid")); raw != "" {
		paid, err := strconv.ParseBool(raw)
		if err != nil {
			return filters, Page{}, apperr.Invalid("paid", "must be true or false")
		}
		filters.Paid = &paid
	}
	if raw := strings.TrimSpace(values.Get("onlyAvailable")); raw != "" {
		only, err := strconv.ParseBool(raw)
		if err != nil {
			return filters, Page{}, apperr.Invalid("onlyAvailable", "must be true or false")
		}
		filters.OnlyAvailable = only
	}
	if raw := strings.TrimSpace(values.Get("sort")); raw != "" {
		switch sort := SortOrder(strings.ToUpper(raw)); sort {
		case SortEventDate, SortViews:
			filters.Sort = sort
		default:
			return filters, Page{}, apperr.Invalid("sort", "must be EVENT_DATE or VIEWS")
		}
	}

	var err error
	if filters.RangeStart, err = parseDateTime("rangeStart", values.Get("rangeStart")); err != nil {
		return filters, Page{}, err
	}
	if filters.RangeEnd, err = parseDateTime("rangeEnd", values.Get("rangeEnd")); err != nil {
		return filters, Page{}, err
	}
	if err := checkRange(filters.RangeStart, filters.RangeEnd); err != nil {
		return filters, Page{}, err
	}
	if filters.RangeStart == nil && filters.RangeEnd == nil {
		start := now.UTC()
		filters.RangeStart = &start
	}

	page, err := ParsePage(values)
	return filters, page, err
}

func splitList(values url.Values, key string) []string {
	var out []string
	for _, raw := range values[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseDateTime(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.ParseInLocation(DateTimeLayout, value, time.UTC)
	if err != nil {
		return nil, apperr.Invalid(field, "expected format %q", DateTimeLayout)
	}
	return &parsed, nil
}

func checkRange(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return apperr.Invalid("rangeEnd", "must not be before rangeStart")
	}
	return nil
}
