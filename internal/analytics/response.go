package analytics

import "time"

// DefaultResponseSeconds is reported when no valid reply sample exists.
const DefaultResponseSeconds = 2.0

// maxResponseDelta bounds accepted inbound→outbound reply gaps.
const maxResponseDelta = 300 * time.Second

// ReplySample is the minimal message view needed by the estimator.
type ReplySample struct {
	Direction string
	CreatedAt time.Time
}

// AverageResponseSeconds estimates mean reply latency from messages ordered
// newest first. Each inbound message is paired with the nearest later
// outbound message, regardless of session; deltas outside (0, 300) seconds
// are discarded. Returns DefaultResponseSeconds when no sample qualifies.
func AverageResponseSeconds(newestFirst []ReplySample) float64 {
	var (
		lastOutbound *time.Time
		total        float64
		samples      int
	)

	for _, msg := range newestFirst {
		switch msg.Direction {
		case "outbound":
			t := msg.CreatedAt
			lastOutbound = &t
		case "inbound":
			if lastOutbound == nil {
				continue
			}
			delta := lastOutbound.Sub(msg.CreatedAt)
			if delta > 0 && delta < maxResponseDelta {
				total += delta.Seconds()
				samples++
			}
			lastOutbound = nil
		}
	}

	if samples == 0 {
		return DefaultResponseSeconds
	}
	return total / float64(samples)
}
