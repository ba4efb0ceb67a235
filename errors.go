package mkvsubs

import "fmt"

// RangeNotSupportedError is returned when the server answered the initial
// probe with a full-body 200 response and full download was not opted into.
// Any other unexpected probe status is a TransportError.
type RangeNotSupportedError struct {
	URL string
}

func (e *RangeNotSupportedError) Error() string {
	return fmt.Sprintf("server does not support range requests: %s", e.URL)
}

// ParseError is a structural violation the parsers cannot recover from:
// a missing EBML header, an unsupported DocType, a missing Segment, a missing
// or unreadable Tracks element, or a Cue index whose first directly addressed
// cluster position holds no readable Cluster header. Other element-level
// malformations inside an otherwise valid file do not produce a ParseError;
// the affected iteration just stops.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "mkv parse error: " + e.Reason
}

// parseErrorf builds a ParseError from a format string.
func parseErrorf(format string, args ...interface{}) error {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

// TransportError is an unexpected HTTP status on a range read. Errors raised
// by the injected HTTP client itself are propagated as-is, not wrapped in
// this type.
type TransportError struct {
	Status int
	Offset int64
	Length int64
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("unexpected status %d reading bytes %d-%d", e.Status, e.Offset, e.Offset+e.Length-1)
}
