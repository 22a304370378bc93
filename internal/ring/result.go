package ring

// Result is the value of one flushed bucket.
type Result struct {
	Value            int64
	BucketStartTicks int64
}

var (
	// Empty means "no result".
	Empty = Result{}
	// ResultZero stands in for a bucket that existed but whose value was
	// overwritten before it could be read.
	ResultZero = Result{Value: 0, BucketStartTicks: 1}
)

// IsEmpty reports whether r is the Empty sentinel.
func (r Result) IsEmpty() bool {
	return r.BucketStartTicks == 0 && r.Value == 0
}
