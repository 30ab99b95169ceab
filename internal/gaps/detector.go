// Package gaps computes missing-chunk reports from the set of sequence
// numbers currently present for a session.
package gaps

// Report describes completeness of a session's chunk set. Sequence numbers
// are a dense expected range starting at 0: any seq below the observed
// maximum with no chunk is a gap to surface, not tolerated silently.
type Report struct {
	Missing        []int `json:"missing"`
	MaxSeq         int   `json:"max_seq"`
	TotalChunks    int   `json:"total_chunks"`
	ExpectedChunks int   `json:"expected_chunks"`
	Complete       bool  `json:"complete"`
}

// Detect computes the report for the given received sequence numbers.
// Duplicates in the input are counted once. Runs in O(maxSeq) via a
// presence set, never a per-element scan.
func Detect(seqs []int) Report {
	if len(seqs) == 0 {
		return Report{Missing: []int{}, MaxSeq: -1, Complete: true}
	}

	maxSeq := seqs[0]
	present := make(map[int]bool, len(seqs))
	for _, s := range seqs {
		present[s] = true
		if s > maxSeq {
			maxSeq = s
		}
	}

	missing := []int{}
	for s := 0; s <= maxSeq; s++ {
		if !present[s] {
			missing = append(missing, s)
		}
	}

	return Report{
		Missing:        missing,
		MaxSeq:         maxSeq,
		TotalChunks:    len(present),
		ExpectedChunks: maxSeq + 1,
		Complete:       len(missing) == 0,
	}
}
