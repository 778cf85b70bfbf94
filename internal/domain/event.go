package domain

import "time"

// Event is a promotional banner shown on the storefront between StartDate and
// EndDate. Active events never share an instant.
type Event struct {
	ID        string    `json:"id"`
	Image     string    `json:"image"`
	URL       *string   `json:"url"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	SortOrder int       `json:"sortOrder"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Window is a closed time interval: both bounds belong to it.
type Window struct {
	Start time.Time
	End   time.Time
}

func (e Event) Window() Window {
	return Window{Start: e.StartDate, End: e.EndDate}
}

// Overlaps reports whether w and o share at least one instant. Windows that
// touch at a bound overlap.
func (w Window) Overlaps(o Window) bool {
	return !o.Start.After(w.End) && !o.End.Before(w.Start)
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
