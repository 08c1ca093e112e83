// Package models contains the models for the Bhavcopy API
package models

// Completeness statuses reported per (date, segment, source)
const (
	StatusSuccess    = "Success"
	StatusNotPresent = "Failed/Not Present"
)

// DayStatus is the completeness of one (date, segment, source) triple
type DayStatus struct {
	Date        string `json:"date"`
	Segment     string `json:"segment"`
	Source      string `json:"source"`
	RecordCount int64  `json:"record_count"`
	Status      string `json:"status"`
	Weekday     string `json:"weekday"`
}

// DayCount is a stored row count grouped by day, segment and source
type DayCount struct {
	Date    string
	Segment string
	Source  string
	Count   int64
}

// StatusPage is one page of DayStatus results
type StatusPage struct {
	Results      []DayStatus `json:"results"`
	CurrentPage  int         `json:"current_page"`
	TotalPages   int         `json:"total_pages"`
	TotalResults int         `json:"total_results"`
	HasPrevious  bool        `json:"has_previous"`
	HasNext      bool        `json:"has_next"`
}
