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

func newApptDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:apptrepo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Appointment{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedAppointment(t *testing.T, db *gorm.DB, stage domain.WorkflowStage) *domain.Appointment {
	t.Helper()
	a := &domain.Appointment{
		CustomerName:  "Mari Tamm",
		CustomerEmail: "mari@example.com",
		VehicleMake:   "Skoda",
		VehicleModel:  "Octavia",
		ServiceType:   "replacement",
		DamageType:    "crack",
		WorkflowStage: stage,
	}
	if err := CreateAppointment(context.Background(), db, a); err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	return a
}

func TestCreateAppointment_GeneratesIdentity(t *testing.T) {
	db := newApptDB(t)
	a := seedAppointment(t, db, "")

	if a.ID == "" {
		t.Fatal("ID not generated")
	}
	if !domain.ValidTrackingToken(a.TrackingToken) {
		t.Fatalf("bad tracking token: %q", a.TrackingToken)
	}
	if !domain.ValidTrackingCode(a.TrackingCode) {
		t.Fatalf("bad tracking code: %q", a.TrackingCode)
	}
	if a.WorkflowStage != domain.StageNew {
		t.Fatalf("default stage = %s, want new", a.WorkflowStage)
	}
	if a.ShopID != nil || a.TotalCost != nil {
		t.Fatal("new appointments must not carry shop or cost")
	}
}

func TestGetAppointmentByRef_ShapeDispatch(t *testing.T) {
	db := newApptDB(t)
	a := seedAppointment(t, db, domain.StageNew)
	ctx := context.Background()

	for _, ref := range []string{a.ID, a.TrackingCode, a.TrackingToken} {
		got, err := GetAppointmentByRef(ctx, db, ref)
		if err != nil {
			t.Fatalf("GetAppointmentByRef(%q): %v", ref, err)
		}
		if got.ID != a.ID {
			t.Fatalf("resolved wrong appointment for %q", ref)
		}
	}

	if _, err := GetAppointmentByRef(ctx, db, "GL-ZZZZZZZZ"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown code: want ErrNotFound, got %v", err)
	}
}

func TestUpdateAppointmentStage_CAS(t *testing.T) {
	db := newApptDB(t)
	a := seedAppointment(t, db, domain.StageNew)
	ctx := context.Background()

	err := UpdateAppointmentStage(ctx, db, a.ID,
		[]domain.WorkflowStage{domain.StageNew},
		map[string]any{"workflow_stage": domain.StageShopSelection})
	if err != nil {
		t.Fatalf("first transition: %v", err)
	}

	// Guard no longer holds: the same transition must fail without writing.
	err = UpdateAppointmentStage(ctx, db, a.ID,
		[]domain.WorkflowStage{domain.StageNew},
		map[string]any{"workflow_stage": domain.StageShopSelection})
	if !errors.Is(err, ErrStale) {
		t.Fatalf("repeat transition: want ErrStale, got %v", err)
	}

	got, err := GetAppointment(ctx, db, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.WorkflowStage != domain.StageShopSelection {
		t.Fatalf("stage = %s, want shop_selection", got.WorkflowStage)
	}
}

func TestMarkCostApproved_SingleShot(t *testing.T) {
	db := newApptDB(t)
	a := seedAppointment(t, db, domain.StageCostApproval)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := MarkCostApproved(ctx, db, a.ID, now); err != nil {
		t.Fatalf("first approval: %v", err)
	}
	if err := MarkCostApproved(ctx, db, a.ID, now); !errors.Is(err, ErrStale) {
		t.Fatalf("second approval: want ErrStale, got %v", err)
	}

	got, _ := GetAppointment(ctx, db, a.ID)
	if !got.CustomerCostApproved || got.WorkflowStage != domain.StageScheduled {
		t.Fatalf("approval effects missing: %+v", got)
	}
	if got.CostApprovedAt == nil {
		t.Fatal("cost_approved_at not stamped")
	}
}

func TestSetAppointmentTotalCost_OnlyWhileUnset(t *testing.T) {
	db := newApptDB(t)
	a := seedAppointment(t, db, domain.StageDamageReport)
	ctx := context.Background()

	if err := SetAppointmentTotalCost(ctx, db, a.ID, 249.999); err != nil {
		t.Fatalf("first price: %v", err)
	}
	if err := SetAppointmentTotalCost(ctx, db, a.ID, 100); !errors.Is(err, ErrStale) {
		t.Fatalf("re-price: want ErrStale, got %v", err)
	}

	got, _ := GetAppointment(ctx, db, a.ID)
	if got.TotalCost == nil || *got.TotalCost != 250.0 {
		t.Fatalf("total = %v, want 250 (rounded)", got.TotalCost)
	}

	if err := ClearAppointmentTotalCost(ctx, db, a.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := SetAppointmentTotalCost(ctx, db, a.ID, 180); err != nil {
		t.Fatalf("price after clear: %v", err)
	}
}
