package httpvenue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mdragan85/venuepoll/internal/model"
)

// kalshiMarket mirrors the fields of the teacher's internal/api.APIMarket
// this package actually needs to build an Instrument; the rest of the
// payload is left unparsed.
type kalshiMarket struct {
	Ticker         string `json:"ticker"`
	EventTicker    string `json:"event_ticker"`
	Title          string `json:"title"`
	Subtitle       string `json:"subtitle"`
	Status         string `json:"status"`
	CloseTime      string `json:"close_time"`
	ExpirationTime string `json:"expiration_time"`
}

type kalshiMarketsResponse struct {
	Markets []kalshiMarket `json:"markets"`
	Cursor  string         `json:"cursor"`
}

// KalshiDiscoverParser turns a GET /markets response body into Instruments,
// the reference concrete DiscoverParser grounded on the teacher's
// api.MarketsResponse/APIMarket. Venue is left blank; httpvenue.Client's
// caller stamps it (the poller always trusts its own configured venue
// name over anything a payload claims).
func KalshiDiscoverParser(body []byte) ([]model.Instrument, error) {
	var resp kalshiMarketsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("httpvenue: unmarshal markets response: %w", err)
	}

	out := make([]model.Instrument, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		if m.Status == "finalized" || m.Status == "settled" {
			continue
		}
		out = append(out, model.Instrument{
			PollKey:    m.Ticker,
			MarketID:   m.EventTicker,
			Title:      m.Title,
			Outcome:    m.Subtitle,
			Expiration: parseKalshiTime(m.CloseTime, m.ExpirationTime),
		})
	}
	return out, nil
}

// parseKalshiTime prefers close_time, falling back to expiration_time; an
// unparseable or empty pair yields 0, which Valid() rejects as ineligible
// rather than crashing discovery.
func parseKalshiTime(closeTime, expirationTime string) int64 {
	for _, s := range []string{closeTime, expirationTime} {
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}

// KalshiOrderbookPath builds the GET /markets/{ticker}/orderbook path.
func KalshiOrderbookPath(pollKey string) string {
	return "/markets/" + pollKey + "/orderbook"
}

// KalshiDiscoverPath is the discovery listing endpoint.
const KalshiDiscoverPath = "/markets"
