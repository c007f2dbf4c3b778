package scan

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Payload is the decoded content of one QR label. The printed labels carry a
// JSON object with these exact field names.
type Payload struct {
	Design           string `json:"Design"`
	Lot              string `json:"Lot"`
	UniqueIdentifier string `json:"Unique Identifier"`
}

// DecodePayload parses the raw string a scanner callback delivers. A decode
// failure means the label is not one of ours; it is reported to the operator
// the same way as a well-formed label with missing fields.
func DecodePayload(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, errors.Wrap(err, "failed to decode QR payload")
	}
	p.Design = strings.TrimSpace(p.Design)
	p.Lot = strings.TrimSpace(p.Lot)
	p.UniqueIdentifier = strings.TrimSpace(p.UniqueIdentifier)
	return p, nil
}
