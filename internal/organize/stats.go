package organize

// Stats tracks aggregate counters for one organize run. Only frames that
// were actually relocated are counted; a frame whose move failed stays at
// the source and is re-scannable on the next run.
type Stats struct {
	TotalFiles   int            `json:"total_files"`
	SuccessCount int            `json:"success_count"`
	FailedCount  int            `json:"failed_count"`
	Reasons      map[string]int `json:"reasons"`
}

func newStats() Stats {
	return Stats{Reasons: make(map[string]int)}
}

func (s *Stats) addReason(reason string) {
	s.Reasons[reason]++
}
