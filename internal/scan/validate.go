package scan

import (
	"fmt"
	"strings"
)

// Reason classifies why a scan was rejected.
type Reason string

const (
	ReasonMalformedFormat  Reason = "MALFORMED_FORMAT"
	ReasonNotInOrder       Reason = "NOT_IN_ORDER"
	ReasonDuplicate        Reason = "DUPLICATE"
	ReasonQuantityExceeded Reason = "QUANTITY_EXCEEDED"
)

// DemandLine is one line of an order's remaining demand as of session start.
type DemandLine struct {
	Design            string
	Lot               string
	OrderedQuantity   int
	FulfilledQuantity int
}

// DemandSnapshot is the frozen view of an order's demand supplied when a
// session starts. A nil snapshot means custom mode: no membership or
// quantity checks apply.
type DemandSnapshot struct {
	OrderNumber int
	Lines       []DemandLine
}

// Event is one accepted scan. Events are append-only and never mutated.
type Event struct {
	Design           string `json:"design"`
	Lot              string `json:"lot"`
	UniqueIdentifier string `json:"unique_identifier"`
	ScannedAt        int64  `json:"scanned_at"` // epoch millis
}

// Result is the outcome of validating a single payload.
type Result struct {
	Valid   bool
	Reason  Reason
	Message string
	// Current and Max are set for quantity failures.
	Current int
	Max     int
}

func valid() Result {
	return Result{Valid: true}
}

func invalid(reason Reason, message string) Result {
	return Result{Valid: false, Reason: reason, Message: message}
}

// Validate decides whether a payload may join the session log. Checks run in
// a fixed order and stop at the first failure so the operator always sees
// the most actionable error: format, order membership, duplicate, quantity.
// It is a pure function of its arguments; snapshot and prior are never
// mutated or retained.
func Validate(p Payload, snapshot *DemandSnapshot, prior []Event) Result {
	if r := validateFormat(p); !r.Valid {
		return r
	}
	if r := validateMembership(p, snapshot); !r.Valid {
		return r
	}
	if r := checkDuplicate(p, prior); !r.Valid {
		return r
	}
	return checkQuantity(p, snapshot, prior)
}

func validateFormat(p Payload) Result {
	if strings.TrimSpace(p.Design) == "" ||
		strings.TrimSpace(p.Lot) == "" ||
		strings.TrimSpace(p.UniqueIdentifier) == "" {
		return invalid(ReasonMalformedFormat, "Invalid QR code format. Missing required fields.")
	}
	return valid()
}

func validateMembership(p Payload, snapshot *DemandSnapshot) Result {
	if snapshot == nil {
		return valid()
	}
	if snapshot.find(p.Design, p.Lot) == nil {
		return invalid(ReasonNotInOrder,
			fmt.Sprintf("Item %s (Lot: %s) is not in this order", p.Design, p.Lot))
	}
	return valid()
}

// checkDuplicate keys solely on the unique identifier, ignoring design and
// lot, matching the label printing process which never reuses identifiers.
func checkDuplicate(p Payload, prior []Event) Result {
	for _, ev := range prior {
		if ev.UniqueIdentifier == p.UniqueIdentifier {
			return invalid(ReasonDuplicate,
				fmt.Sprintf("Item %s has already been scanned", p.UniqueIdentifier))
		}
	}
	return valid()
}

func checkQuantity(p Payload, snapshot *DemandSnapshot, prior []Event) Result {
	if snapshot == nil {
		return valid()
	}
	line := snapshot.find(p.Design, p.Lot)
	if line == nil {
		// Membership already passed, so this only happens when callers skip
		// Validate and call the checks directly.
		return invalid(ReasonNotInOrder, "Item not found in order")
	}

	current := 0
	for _, ev := range prior {
		if ev.Design == p.Design && ev.Lot == p.Lot {
			current++
		}
	}
	max := line.OrderedQuantity - line.FulfilledQuantity

	if current >= max {
		r := invalid(ReasonQuantityExceeded,
			fmt.Sprintf("Quantity limit reached for %s. Max: %d, Current: %d", p.Design, max, current))
		r.Current = current
		r.Max = max
		return r
	}
	return valid()
}

func (s *DemandSnapshot) find(design, lot string) *DemandLine {
	for i := range s.Lines {
		if s.Lines[i].Design == design && s.Lines[i].Lot == lot {
			return &s.Lines[i]
		}
	}
	return nil
}
