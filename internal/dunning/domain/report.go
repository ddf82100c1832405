package domain

// Report aggregates one sweep's outcome. Individual failures go to
// logs and notifications, never to the caller.
type Report struct {
	Processed  int         `json:"processed"`
	SentByTier map[int]int `json:"sent_by_tier"`
	Skipped    int         `json:"skipped"`
	Errored    int         `json:"errored"`
}

func NewReport() Report {
	return Report{SentByTier: make(map[int]int)}
}

// Sent totals reminders across tiers.
func (r Report) Sent() int {
	total := 0
	for _, n := range r.SentByTier {
		total += n
	}
	return total
}
