package analytics

import "hash/fnv"

// InflateSeries layers a deterministic demo bump onto real counts so charts
// look populated in demo environments. Disabled by default; the faithful
// series is always the un-inflated one.
func InflateSeries(series []Bucket, magnitude int) []Bucket {
	if magnitude <= 0 {
		return series
	}
	out := make([]Bucket, len(series))
	for i, b := range series {
		h := fnv.New32a()
		h.Write([]byte(b.Label))
		out[i] = Bucket{Label: b.Label, Count: b.Count + int(h.Sum32()%uint32(magnitude))}
	}
	return out
}
