package analytics

import (
	"testing"

	"github.com/foxzi/msghub/internal/models"
)

func TestComputeRates(t *testing.T) {
	tests := []struct {
		name string
		in   models.Counters
		want Rates
	}{
		{
			name: "typical campaign",
			in:   models.Counters{Sent: 100, Delivered: 95, Opened: 20},
			want: Rates{DeliveryRate: 95, OpenRate: 21.05},
		},
		{
			name: "nothing sent",
			in:   models.Counters{},
			want: Rates{},
		},
		{
			name: "opens without deliveries",
			in:   models.Counters{Sent: 10, Opened: 3, Clicked: 1},
			want: Rates{},
		},
		{
			name: "clicks and bounces",
			in:   models.Counters{Sent: 3, Delivered: 3, Clicked: 1, Bounced: 1},
			want: Rates{DeliveryRate: 100, ClickRate: 33.33, BounceRate: 33.33},
		},
		{
			name: "clamped above 100",
			in:   models.Counters{Sent: 2, Delivered: 2, Opened: 5},
			want: Rates{DeliveryRate: 100, OpenRate: 100},
		},
		{
			name: "rounding half up",
			in:   models.Counters{Sent: 8, Delivered: 1},
			want: Rates{DeliveryRate: 12.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeRates(tt.in); got != tt.want {
				t.Errorf("ComputeRates(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestReport(t *testing.T) {
	c := &models.Campaign{ID: "c1", Counters: models.Counters{Sent: 4, Delivered: 2}}
	r := Report(c)
	if r.ID != "c1" || r.Rates.DeliveryRate != 50 {
		t.Errorf("Report() = %+v", r)
	}
}

func TestSummarize(t *testing.T) {
	campaigns := []models.Campaign{
		{Channel: models.ChannelSMS, Status: models.CampaignStatusCompleted, RecipientCount: 10,
			Counters: models.Counters{Sent: 10, Delivered: 8, Failed: 0}},
		{Channel: models.ChannelEmail, Status: models.CampaignStatusCompleted, RecipientCount: 5,
			Counters: models.Counters{Sent: 4, Delivered: 4, Opened: 2, Clicked: 1, Failed: 1}},
		{Channel: models.ChannelSMS, Status: models.CampaignStatusCancelled, RecipientCount: 3},
	}

	s := Summarize(campaigns)

	if s.Campaigns != 3 || s.Recipients != 18 {
		t.Errorf("Campaigns/Recipients = %d/%d", s.Campaigns, s.Recipients)
	}
	if s.Counters.Sent != 14 || s.Counters.Delivered != 12 || s.Counters.Failed != 1 {
		t.Errorf("Counters = %+v", s.Counters)
	}
	if s.Rates.DeliveryRate != 85.71 || s.Rates.OpenRate != 16.67 {
		t.Errorf("Rates = %+v", s.Rates)
	}
	if s.ByStatus[models.CampaignStatusCompleted] != 2 || s.ByStatus[models.CampaignStatusCancelled] != 1 {
		t.Errorf("ByStatus = %v", s.ByStatus)
	}

	if len(s.ByChannel) != 2 {
		t.Fatalf("ByChannel = %+v", s.ByChannel)
	}
	if s.ByChannel[0].Channel != models.ChannelEmail || s.ByChannel[1].Channel != models.ChannelSMS {
		t.Errorf("ByChannel order = %s, %s", s.ByChannel[0].Channel, s.ByChannel[1].Channel)
	}
	if s.ByChannel[1].Campaigns != 2 || s.ByChannel[1].Rates.DeliveryRate != 80 {
		t.Errorf("sms summary = %+v", s.ByChannel[1])
	}
	if s.ByChannel[0].Rates.ClickRate != 25 {
		t.Errorf("email click rate = %v", s.ByChannel[0].Rates.ClickRate)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Campaigns != 0 || len(s.ByChannel) != 0 || s.Rates != (Rates{}) {
		t.Errorf("Summarize(nil) = %+v", s)
	}
}
