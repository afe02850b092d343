// Package analytics derives delivery and engagement rates from campaign counters.
package analytics

import (
	"math"
	"sort"

	"github.com/foxzi/msghub/internal/models"
)

// Rates are percentages in [0, 100] rounded to two decimals
type Rates struct {
	DeliveryRate float64 `json:"delivery_rate"`
	OpenRate     float64 `json:"open_rate"`
	ClickRate    float64 `json:"click_rate"`
	BounceRate   float64 `json:"bounce_rate"`
}

// ComputeRates returns the rates of a counter set. A zero denominator yields 0.
func ComputeRates(c models.Counters) Rates {
	return Rates{
		DeliveryRate: percent(c.Delivered, c.Sent),
		OpenRate:     percent(c.Opened, c.Delivered),
		ClickRate:    percent(c.Clicked, c.Delivered),
		BounceRate:   percent(c.Bounced, c.Sent),
	}
}

func percent(num, den int) float64 {
	if den <= 0 || num <= 0 {
		return 0
	}
	p := math.Round(float64(num)/float64(den)*100*100) / 100
	return math.Min(p, 100)
}

// CampaignReport is a campaign with its derived rates
type CampaignReport struct {
	*models.Campaign
	Rates Rates `json:"rates"`
}

// Report attaches rates to a campaign
func Report(c *models.Campaign) CampaignReport {
	return CampaignReport{Campaign: c, Rates: ComputeRates(c.Counters)}
}

// ChannelSummary aggregates the campaigns of one channel
type ChannelSummary struct {
	Channel   models.Channel  `json:"channel"`
	Campaigns int             `json:"campaigns"`
	Counters  models.Counters `json:"counters"`
	Rates     Rates           `json:"rates"`
}

// Summary aggregates a set of campaigns
type Summary struct {
	Campaigns  int              `json:"campaigns"`
	Recipients int              `json:"recipients"`
	Counters   models.Counters  `json:"counters"`
	Rates      Rates            `json:"rates"`
	ByStatus   map[string]int   `json:"by_status"`
	ByChannel  []ChannelSummary `json:"by_channel"`
}

// Summarize totals counters overall and per channel
func Summarize(campaigns []models.Campaign) Summary {
	s := Summary{ByStatus: make(map[string]int)}
	channels := make(map[models.Channel]*ChannelSummary)

	for i := range campaigns {
		c := &campaigns[i]
		s.Campaigns++
		s.Recipients += c.RecipientCount
		s.ByStatus[c.Status]++
		add(&s.Counters, c.Counters)

		cs, ok := channels[c.Channel]
		if !ok {
			cs = &ChannelSummary{Channel: c.Channel}
			channels[c.Channel] = cs
		}
		cs.Campaigns++
		add(&cs.Counters, c.Counters)
	}

	s.Rates = ComputeRates(s.Counters)
	s.ByChannel = make([]ChannelSummary, 0, len(channels))
	for _, cs := range channels {
		cs.Rates = ComputeRates(cs.Counters)
		s.ByChannel = append(s.ByChannel, *cs)
	}
	sort.Slice(s.ByChannel, func(i, j int) bool {
		return s.ByChannel[i].Channel < s.ByChannel[j].Channel
	})

	return s
}

func add(dst *models.Counters, src models.Counters) {
	dst.Sent += src.Sent
	dst.Delivered += src.Delivered
	dst.Failed += src.Failed
	dst.Opened += src.Opened
	dst.Clicked += src.Clicked
	dst.Bounced += src.Bounced
	dst.Unsubscribed += src.Unsubscribed
}
