package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/foxzi/msghub/internal/db"
	"github.com/foxzi/msghub/internal/models"
)

// setupTestDB creates an in-memory SQLite database with all migrations applied
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	d, err := db.Open(db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	if err := d.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return NewStore(d)
}

func createCampaign(t *testing.T, s *Store, org string, ch models.Channel) *models.Campaign {
	t.Helper()
	c := &models.Campaign{
		Name:           "Spring sale",
		OrganizationID: org,
		TemplateID:     "tpl-1",
		Channel:        ch,
	}
	if err := s.Campaigns.Create(context.Background(), c); err != nil {
		t.Fatalf("Create campaign failed: %v", err)
	}
	return c
}

func TestCampaignRepository_CreateGet(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	c := createCampaign(t, s, "org-1", models.ChannelEmail)
	if c.ID == "" {
		t.Fatal("expected ID to be assigned")
	}
	if c.Status != models.CampaignStatusDraft {
		t.Errorf("Status = %s, want draft", c.Status)
	}

	got, err := s.Campaigns.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("campaign not found")
	}
	if got.Name != "Spring sale" || got.Channel != models.ChannelEmail || got.OrganizationID != "org-1" {
		t.Errorf("unexpected campaign: %+v", got)
	}
	if got.SentAt != nil {
		t.Errorf("SentAt = %v, want nil", got.SentAt)
	}

	missing, err := s.Campaigns.GetByID(ctx, "nope")
	if err != nil {
		t.Fatalf("GetByID missing failed: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing campaign")
	}
}

func TestCampaignRepository_Transition(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	c := createCampaign(t, s, "org-1", models.ChannelSMS)

	tests := []struct {
		to   string
		want bool
	}{
		{models.CampaignStatusSending, true},
		{models.CampaignStatusCancelled, false},
		{models.CampaignStatusDraft, false},
		{models.CampaignStatusCompleted, true},
		{models.CampaignStatusSending, false},
	}

	for _, tt := range tests {
		ok, err := s.Campaigns.Transition(ctx, c.ID, tt.to)
		if err != nil {
			t.Fatalf("Transition(%s) failed: %v", tt.to, err)
		}
		if ok != tt.want {
			t.Errorf("Transition(%s) = %v, want %v", tt.to, ok, tt.want)
		}
	}

	got, _ := s.Campaigns.GetByID(ctx, c.ID)
	if got.Status != models.CampaignStatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
	if got.SentAt == nil || got.CompletedAt == nil {
		t.Error("expected sent_at and completed_at to be set")
	}

	ok, err := s.Campaigns.Transition(ctx, "missing", models.CampaignStatusSending)
	if err != nil || ok {
		t.Errorf("Transition(missing) = %v, %v", ok, err)
	}
}

func TestCampaignRepository_Cancel(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	c := createCampaign(t, s, "org-1", models.ChannelSMS)

	ok, err := s.Campaigns.Transition(ctx, c.ID, models.CampaignStatusCancelled)
	if err != nil || !ok {
		t.Fatalf("cancel draft = %v, %v", ok, err)
	}
	ok, _ = s.Campaigns.Transition(ctx, c.ID, models.CampaignStatusSending)
	if ok {
		t.Error("cancelled campaign must not move to sending")
	}
}

func TestCampaignRepository_IncrementCountersConcurrent(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	c := createCampaign(t, s, "org-1", models.ChannelEmail)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Campaigns.IncrementCounters(ctx, c.ID, models.Counters{Sent: 1, Opened: 1}); err != nil {
				t.Errorf("IncrementCounters failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.Campaigns.GetByID(ctx, c.ID)
	if got.Sent != 20 || got.Opened != 20 {
		t.Errorf("counters = %+v, want sent=20 opened=20", got.Counters)
	}
}

func TestCampaignRepository_ListAndCount(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	createCampaign(t, s, "org-1", models.ChannelEmail)
	createCampaign(t, s, "org-1", models.ChannelSMS)
	c3 := createCampaign(t, s, "org-2", models.ChannelSMS)
	s.Campaigns.Transition(ctx, c3.ID, models.CampaignStatusSending)

	list, err := s.Campaigns.List(ctx, models.CampaignFilter{OrganizationID: "org-1"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("org-1 campaigns = %d, want 2", len(list))
	}

	list, _ = s.Campaigns.List(ctx, models.CampaignFilter{Channel: models.ChannelSMS})
	if len(list) != 2 {
		t.Errorf("sms campaigns = %d, want 2", len(list))
	}

	future := time.Now().Add(time.Hour)
	list, _ = s.Campaigns.List(ctx, models.CampaignFilter{Since: &future})
	if len(list) != 0 {
		t.Errorf("future campaigns = %d, want 0", len(list))
	}

	list, _ = s.Campaigns.List(ctx, models.CampaignFilter{Since: Since(7), Limit: 1})
	if len(list) != 1 {
		t.Errorf("limited campaigns = %d, want 1", len(list))
	}

	counts, err := s.Campaigns.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if counts[models.CampaignStatusDraft] != 2 || counts[models.CampaignStatusSending] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestDeliveryRepository(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	c := createCampaign(t, s, "org-1", models.ChannelEmail)

	sent := time.Now()
	d := &models.Delivery{
		CampaignID:        c.ID,
		ContactID:         "contact-1",
		ExternalMessageID: "ext-1",
		Channel:           models.ChannelEmail,
		RecipientAddress:  "ana@example.com",
		Provider:          "smtp",
		Status:            models.DeliveryStatusSent,
		SentAt:            &sent,
	}
	if err := s.Deliveries.Create(ctx, d); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := s.Deliveries.GetByExternalID(ctx, "ext-1")
	if err != nil || got == nil {
		t.Fatalf("GetByExternalID = %v, %v", got, err)
	}
	if got.ID != d.ID || got.SentAt == nil {
		t.Errorf("unexpected delivery: %+v", got)
	}

	if got, _ := s.Deliveries.GetByExternalID(ctx, ""); got != nil {
		t.Error("empty external id must not match")
	}

	first, err := s.Deliveries.MarkOpened(ctx, d.ID, time.Now())
	if err != nil || !first {
		t.Fatalf("first MarkOpened = %v, %v", first, err)
	}
	again, err := s.Deliveries.MarkOpened(ctx, d.ID, time.Now())
	if err != nil || again {
		t.Fatalf("second MarkOpened = %v, %v", again, err)
	}

	ok, err := s.Deliveries.UpdateStatus(ctx, d.ID, models.DeliveryStatusQueued, models.DeliveryStatusDelivered, "", "")
	if err != nil || ok {
		t.Errorf("stale UpdateStatus = %v, %v", ok, err)
	}
	ok, err = s.Deliveries.UpdateStatus(ctx, d.ID, models.DeliveryStatusSent, models.DeliveryStatusDelivered, "", "")
	if err != nil || !ok {
		t.Errorf("UpdateStatus = %v, %v", ok, err)
	}

	got, _ = s.Deliveries.GetByID(ctx, d.ID)
	if got.Status != models.DeliveryStatusDelivered || got.DeliveredAt == nil || got.OpenedAt == nil {
		t.Errorf("unexpected delivery after updates: %+v", got)
	}

	counts, _ := s.Deliveries.CountByCampaign(ctx, c.ID)
	if counts[models.DeliveryStatusDelivered] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestDeliveryRepository_CascadeDelete(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	c := createCampaign(t, s, "org-1", models.ChannelSMS)

	for i := 0; i < 3; i++ {
		d := &models.Delivery{CampaignID: c.ID, Channel: models.ChannelSMS, RecipientAddress: "15550100"}
		if err := s.Deliveries.Create(ctx, d); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	if err := s.Campaigns.Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	list, err := s.Deliveries.ListByCampaign(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListByCampaign failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("deliveries after cascade = %d, want 0", len(list))
	}
}

func TestStoreInTxRollback(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	c := createCampaign(t, s, "org-1", models.ChannelSMS)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx *Store) error {
		d := &models.Delivery{CampaignID: c.ID, Channel: models.ChannelSMS, RecipientAddress: "15550100"}
		if err := tx.Deliveries.Create(ctx, d); err != nil {
			return err
		}
		if err := tx.Campaigns.IncrementCounters(ctx, c.ID, models.Counters{Sent: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx error = %v, want boom", err)
	}

	list, _ := s.Deliveries.ListByCampaign(ctx, c.ID)
	if len(list) != 0 {
		t.Errorf("deliveries = %d, want 0 after rollback", len(list))
	}
	got, _ := s.Campaigns.GetByID(ctx, c.ID)
	if got.Sent != 0 {
		t.Errorf("sent = %d, want 0 after rollback", got.Sent)
	}
}

func TestLogRepository(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	sent := time.Now()
	entries := []*models.MessageLog{
		{OrganizationID: "org-1", Channel: models.ChannelSMS, Recipient: "15550100", Status: models.LogStatusSent, Provider: "msg91", ProviderMessageID: "r-1", SentAt: &sent},
		{OrganizationID: "org-1", Channel: models.ChannelSMS, Recipient: "15550101", Status: models.LogStatusFailed, Provider: "msg91", ErrorMessage: "HTTP 500"},
		{OrganizationID: "org-2", Channel: models.ChannelEmail, Recipient: "a@example.com", Status: models.LogStatusSent},
	}
	for _, l := range entries {
		if err := s.Logs.Create(ctx, l); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	logs, err := s.Logs.List(ctx, "org-1", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("logs = %d, want 2", len(logs))
	}
	for _, l := range logs {
		if l.Status == models.LogStatusSent && l.SentAt == nil {
			t.Error("sent log must carry sent_at")
		}
		if l.Status == models.LogStatusFailed && l.SentAt != nil {
			t.Error("failed log must not carry sent_at")
		}
	}

	logs, _ = s.Logs.List(ctx, "org-1", 1)
	if len(logs) != 1 {
		t.Errorf("limited logs = %d, want 1", len(logs))
	}
}
