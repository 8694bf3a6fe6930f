package aggregator

// Fingerprint accumulates one metric for one label (a function and its
// defining location) across every thread it was seen on.
type Fingerprint struct {
	Label string
	Order int

	Value   float64
	Threads map[int64]struct{}
}

// Row is one line of a metric table. Value is already scaled for display.
// Threads counts the distinct threads the label was seen on.
type Row struct {
	Value      float64
	Percentage float64
	Label      string
	Threads    int
}
