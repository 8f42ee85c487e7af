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

func newOfferDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:offerrepo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.JobOffer{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedOffer(t *testing.T, db *gorm.DB, apptID, shopID string, ttl time.Duration) *domain.JobOffer {
	t.Helper()
	now := time.Now().UTC()
	o := &domain.JobOffer{
		AppointmentID: apptID,
		ShopID:        shopID,
		OfferedPrice:  150,
		OfferedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
	if err := CreateOffer(context.Background(), db, o); err != nil {
		t.Fatalf("seed offer: %v", err)
	}
	return o
}

func TestCreateOffer_RejectsDuplicateLiveOffer(t *testing.T) {
	db := newOfferDB(t)
	ctx := context.Background()
	apptID := uuid.NewString()

	seedOffer(t, db, apptID, "shop-1", 24*time.Hour)

	dup := &domain.JobOffer{
		AppointmentID: apptID,
		ShopID:        "shop-1",
		OfferedPrice:  150,
		ExpiresAt:     time.Now().UTC().Add(24 * time.Hour),
	}
	if err := CreateOffer(ctx, db, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second live offer: want ErrDuplicate, got %v", err)
	}

	// A different shop on the same appointment is always allowed.
	seedOffer(t, db, apptID, "shop-2", 24*time.Hour)
}

func TestCreateOffer_AllowsNewOfferAfterExpiry(t *testing.T) {
	db := newOfferDB(t)
	apptID := uuid.NewString()

	// The earlier offer's TTL has already elapsed, so it does not count as
	// live even before the sweep flips its status.
	seedOffer(t, db, apptID, "shop-1", -time.Minute)
	seedOffer(t, db, apptID, "shop-1", 24*time.Hour)
}

func TestRespondOffer_SingleShot(t *testing.T) {
	db := newOfferDB(t)
	ctx := context.Background()
	o := seedOffer(t, db, uuid.NewString(), "shop-1", 24*time.Hour)
	now := time.Now().UTC()

	if err := RespondOffer(ctx, db, o.ID, domain.OfferStatusAccepted, nil, now); err != nil {
		t.Fatalf("first response: %v", err)
	}
	reason := "too far"
	err := RespondOffer(ctx, db, o.ID, domain.OfferStatusDeclined, &reason, now)
	if !errors.Is(err, ErrStale) {
		t.Fatalf("second response: want ErrStale, got %v", err)
	}

	got, _ := GetOffer(ctx, db, o.ID)
	if got.Status != domain.OfferStatusAccepted {
		t.Fatalf("status = %s, want accepted", got.Status)
	}
	if got.RespondedAt == nil {
		t.Fatal("responded_at not stamped")
	}
}

func TestMarkOfferExpired(t *testing.T) {
	db := newOfferDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := seedOffer(t, db, uuid.NewString(), "shop-1", -time.Minute)
	fresh := seedOffer(t, db, uuid.NewString(), "shop-1", time.Hour)

	if err := MarkOfferExpired(ctx, db, stale.ID, now); err != nil {
		t.Fatalf("expire stale: %v", err)
	}
	// Not past its TTL, the conditional matches nothing.
	if err := MarkOfferExpired(ctx, db, fresh.ID, now); err != nil {
		t.Fatalf("expire fresh: %v", err)
	}

	got, _ := GetOffer(ctx, db, stale.ID)
	if got.Status != domain.OfferStatusExpired {
		t.Fatalf("stale status = %s, want expired", got.Status)
	}
	got, _ = GetOffer(ctx, db, fresh.ID)
	if got.Status != domain.OfferStatusOffered {
		t.Fatalf("fresh status = %s, want offered", got.Status)
	}
}

func TestExpireSiblings_ScopedToAppointment(t *testing.T) {
	db := newOfferDB(t)
	ctx := context.Background()
	apptID := uuid.NewString()

	winner := seedOffer(t, db, apptID, "shop-1", 24*time.Hour)
	loser := seedOffer(t, db, apptID, "shop-2", 24*time.Hour)
	other := seedOffer(t, db, uuid.NewString(), "shop-3", 24*time.Hour)

	n, err := ExpireSiblings(ctx, db, apptID, winner.ID)
	if err != nil {
		t.Fatalf("expire siblings: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d siblings, want 1", n)
	}

	got, _ := GetOffer(ctx, db, winner.ID)
	if got.Status != domain.OfferStatusOffered {
		t.Errorf("winner status = %s, want offered", got.Status)
	}
	got, _ = GetOffer(ctx, db, loser.ID)
	if got.Status != domain.OfferStatusExpired {
		t.Errorf("sibling status = %s, want expired", got.Status)
	}
	got, _ = GetOffer(ctx, db, other.ID)
	if got.Status != domain.OfferStatusOffered {
		t.Errorf("other appointment's offer status = %s, want offered", got.Status)
	}
}

func TestSweepExpired_Idempotent(t *testing.T) {
	db := newOfferDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seedOffer(t, db, uuid.NewString(), "shop-1", -time.Minute)
	seedOffer(t, db, uuid.NewString(), "shop-2", -time.Minute)
	seedOffer(t, db, uuid.NewString(), "shop-3", time.Hour)

	n, err := SweepExpired(ctx, db, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("swept %d, want 2", n)
	}
	n, err = SweepExpired(ctx, db, now)
	if err != nil || n != 0 {
		t.Fatalf("second sweep = (%d, %v), want (0, nil)", n, err)
	}
}

func TestListOffersForShop_Pagination(t *testing.T) {
	db := newOfferDB(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		o := &domain.JobOffer{
			AppointmentID: uuid.NewString(),
			ShopID:        "shop-1",
			OfferedPrice:  100,
			OfferedAt:     base.Add(time.Duration(i) * time.Minute),
			ExpiresAt:     base.Add(24 * time.Hour),
		}
		if err := CreateOffer(ctx, db, o); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	page, err := ListOffersForShop(ctx, db, "shop-1", 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	if !page[0].OfferedAt.After(page[1].OfferedAt) {
		t.Error("offers not ordered most recent first")
	}
	if total, _ := CountOffersForShop(ctx, db, "shop-1"); total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
}
