package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/RaunoDriveX/drivex-jobflow/internal/domain"
)

func newShopDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:shoprepo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	models := []any{
		&domain.Shop{},
		&domain.CostEstimate{},
		&domain.AvailabilitySlot{},
		&domain.Appointment{},
		&domain.JobOffer{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedShop(t *testing.T, db *gorm.DB, name string) *domain.Shop {
	t.Helper()
	s := &domain.Shop{
		ID:   uuid.NewString(),
		Name: name,
		City: "Tallinn",
	}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("seed shop: %v", err)
	}
	return s
}

func TestRecordOfferOutcome_Counters(t *testing.T) {
	db := newShopDB(t)
	ctx := context.Background()
	s := seedShop(t, db, "Klaasikoda")

	got, err := RecordOfferOutcome(ctx, db, s.ID, true)
	if err != nil {
		t.Fatalf("accept outcome: %v", err)
	}
	if got.JobsOffered != 1 || got.JobsAccepted != 1 {
		t.Fatalf("counters = %d/%d, want 1/1", got.JobsOffered, got.JobsAccepted)
	}

	got, err = RecordOfferOutcome(ctx, db, s.ID, false)
	if err != nil {
		t.Fatalf("decline outcome: %v", err)
	}
	if got.JobsOffered != 2 || got.JobsAccepted != 1 {
		t.Fatalf("counters = %d/%d, want 2/1", got.JobsOffered, got.JobsAccepted)
	}
	if got.AcceptanceRate() != 0.5 {
		t.Fatalf("rate = %v, want 0.5", got.AcceptanceRate())
	}

	if _, err := RecordOfferOutcome(ctx, db, uuid.NewString(), true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown shop: want ErrNotFound, got %v", err)
	}
}

func TestListShops_OrderAndCount(t *testing.T) {
	db := newShopDB(t)
	ctx := context.Background()
	seedShop(t, db, "Beta Klaas")
	seedShop(t, db, "Autoklaas24")

	shops, err := ListShops(ctx, db, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(shops) != 2 || shops[0].Name != "Autoklaas24" {
		t.Fatalf("unexpected listing: %+v", shops)
	}
	if n, _ := CountShops(ctx, db); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestCreateEstimate_OnePerAppointment(t *testing.T) {
	db := newShopDB(t)
	ctx := context.Background()
	apptID := uuid.NewString()

	e := &domain.CostEstimate{
		AppointmentID: apptID,
		ShopID:        "shop-1",
		LineItems:     []domain.CostLine{{Name: "Windshield", Quantity: 1, UnitPrice: 180}},
		PartsCost:     180,
		LaborCost:     60,
		TotalCost:     240,
		Source:        "shop",
	}
	if err := CreateEstimate(ctx, db, e); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := &domain.CostEstimate{AppointmentID: apptID, ShopID: "shop-1", TotalCost: 99, Source: "shop"}
	if err := CreateEstimate(ctx, db, second); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second estimate: want ErrDuplicate, got %v", err)
	}

	got, err := GetEstimate(ctx, db, apptID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.LineItems) != 1 || got.LineItems[0].Name != "Windshield" {
		t.Fatalf("line items not round-tripped: %+v", got.LineItems)
	}

	if err := DeleteEstimate(ctx, db, apptID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Deleting again is a tolerated no-op, and the slot is free for a resubmission.
	if err := DeleteEstimate(ctx, db, apptID); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	if err := CreateEstimate(ctx, db, second); err != nil {
		t.Fatalf("resubmit after delete: %v", err)
	}
}

func TestBookSlot_UniquePerShopDateTime(t *testing.T) {
	db := newShopDB(t)
	ctx := context.Background()

	if err := BookSlot(ctx, db, "shop-1", "2026-09-01", "10:00:00", uuid.NewString()); err != nil {
		t.Fatalf("book: %v", err)
	}
	err := BookSlot(ctx, db, "shop-1", "2026-09-01", "10:00:00", uuid.NewString())
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("double booking: want ErrDuplicate, got %v", err)
	}
	// Same time at another shop is a different slot.
	if err := BookSlot(ctx, db, "shop-2", "2026-09-01", "10:00:00", uuid.NewString()); err != nil {
		t.Fatalf("other shop: %v", err)
	}

	held := uuid.NewString()
	if err := BookSlot(ctx, db, "shop-1", "2026-09-02", "11:00:00", held); err != nil {
		t.Fatalf("book: %v", err)
	}
	if err := ReleaseSlots(ctx, db, held); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := BookSlot(ctx, db, "shop-1", "2026-09-02", "11:00:00", uuid.NewString()); err != nil {
		t.Fatalf("rebook after release: %v", err)
	}
}

func TestCollectWorkflowStats(t *testing.T) {
	db := newShopDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, stage := range []domain.WorkflowStage{domain.StageNew, domain.StageNew, domain.StageScheduled} {
		a := &domain.Appointment{WorkflowStage: stage, CustomerName: "x", ServiceType: "repair", DamageType: "chip"}
		if err := CreateAppointment(ctx, db, a); err != nil {
			t.Fatalf("seed appointment: %v", err)
		}
	}
	live := &domain.JobOffer{AppointmentID: uuid.NewString(), ShopID: "s1", ExpiresAt: now.Add(time.Hour)}
	if err := CreateOffer(ctx, db, live); err != nil {
		t.Fatalf("seed offer: %v", err)
	}
	past := &domain.JobOffer{AppointmentID: uuid.NewString(), ShopID: "s2", ExpiresAt: now.Add(-time.Hour)}
	if err := CreateOffer(ctx, db, past); err != nil {
		t.Fatalf("seed offer: %v", err)
	}

	stats, err := CollectWorkflowStats(ctx, db, now)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Appointments != 3 {
		t.Errorf("appointments = %d, want 3", stats.Appointments)
	}
	if stats.ByStage[domain.StageNew] != 2 || stats.ByStage[domain.StageScheduled] != 1 {
		t.Errorf("by_stage = %v", stats.ByStage)
	}
	if stats.OpenOffers != 1 {
		t.Errorf("open offers = %d, want 1", stats.OpenOffers)
	}
}
