package scan

// AggregatedLine is the per-(design, lot) rollup of a scan log.
type AggregatedLine struct {
	Design            string   `json:"design"`
	Lot               string   `json:"lot"`
	Count             int      `json:"quantity"`
	UniqueIdentifiers []string `json:"unique_identifiers"`
}

// Aggregate groups events by (design, lot). Lines come out in first-seen
// order and identifiers stay in scan order. The result is recomputed from
// the whole log on every call; there is no incremental state to drift.
func Aggregate(events []Event) []AggregatedLine {
	index := make(map[[2]string]int, len(events))
	lines := make([]AggregatedLine, 0, len(events))

	for _, ev := range events {
		key := [2]string{ev.Design, ev.Lot}
		if i, ok := index[key]; ok {
			lines[i].Count++
			lines[i].UniqueIdentifiers = append(lines[i].UniqueIdentifiers, ev.UniqueIdentifier)
			continue
		}
		index[key] = len(lines)
		lines = append(lines, AggregatedLine{
			Design:            ev.Design,
			Lot:               ev.Lot,
			Count:             1,
			UniqueIdentifiers: []string{ev.UniqueIdentifier},
		})
	}
	return lines
}
