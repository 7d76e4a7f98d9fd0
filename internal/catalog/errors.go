package catalog

import "errors"

var (
	// ErrNotFound reports an id or code lookup miss.
	ErrNotFound = errors.New("product not found")
	// ErrConflict reports an update that would duplicate another product's code.
	ErrConflict = errors.New("product code already in use")
	// ErrInvalidRecord reports a record that fails validation.
	ErrInvalidRecord = errors.New("invalid product record")
	// ErrExtraction reports a listing page whose structure could not be parsed.
	ErrExtraction = errors.New("extraction failed")
	// ErrNetwork reports a failed page fetch.
	ErrNetwork = errors.New("network failure")
	// ErrStore reports a failed store transaction; no partial writes remain.
	ErrStore = errors.New("store failure")
	// ErrRunInProgress is returned when a scrape run is requested while another is active.
	ErrRunInProgress = errors.New("scrape run already in progress")
)
