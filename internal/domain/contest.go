package domain

// ContestWindow is the inclusive time range, in Unix seconds, during which
// transfers count toward the contest.
type ContestWindow struct {
	Start int64
	End   int64
}

// Contains reports whether ts falls within [Start, End].
func (w ContestWindow) Contains(ts int64) bool {
	return ts >= w.Start && ts <= w.End
}

// Ended reports whether now (Unix seconds) is past the end of the window.
func (w ContestWindow) Ended(now int64) bool {
	return now > w.End
}
