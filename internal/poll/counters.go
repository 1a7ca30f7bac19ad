package poll

import "github.com/mdragan85/venuepoll/internal/venue"

// counters accumulates one cycle's fetch outcomes, grounded on
// original_source/collectors/market_logger.py's PollCounters dataclass.
type counters struct {
	submitted int
	successes int
	failures  int
	http429   int
	http4xx   int
	http5xx   int
	timeouts  int
	otherErrs int
}

func (c *counters) recordSuccess() {
	c.submitted++
	c.successes++
}

// recordFailure classifies err/status into the matching bucket, mirroring
// _classify_failure in the Python original.
func (c *counters) recordFailure(kind venue.Kind) {
	c.submitted++
	c.failures++
	switch kind {
	case venue.RateLimited:
		c.http429++
	case venue.ClientError:
		c.http4xx++
	case venue.ServerError:
		c.http5xx++
	case venue.Timeout:
		c.timeouts++
	default:
		c.otherErrs++
	}
}
