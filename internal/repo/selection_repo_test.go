package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/RaunoDriveX/drivex-jobflow/internal/domain"
)

func newSelectionDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:selrepo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.ShopSelection{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func shortlistOf(shops ...string) []domain.ShopSelection {
	rows := make([]domain.ShopSelection, 0, len(shops))
	for _, s := range shops {
		rows = append(rows, domain.ShopSelection{
			ShopID:         s,
			ShopName:       "Shop " + s,
			EstimatedPrice: 199.999,
		})
	}
	return rows
}

func TestCreateSelections_AssignsPriorities(t *testing.T) {
	db := newSelectionDB(t)
	ctx := context.Background()
	apptID := uuid.NewString()

	if err := CreateSelections(ctx, db, apptID, shortlistOf("s1", "s2", "s3")); err != nil {
		t.Fatalf("create: %v", err)
	}

	rows, err := ListSelections(ctx, db, apptID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i, row := range rows {
		if row.PriorityOrder != i+1 {
			t.Errorf("row %d priority = %d, want %d", i, row.PriorityOrder, i+1)
		}
		if row.EstimatedPrice != 200.0 {
			t.Errorf("row %d price = %v, want 200 (rounded)", i, row.EstimatedPrice)
		}
	}
}

func TestCreateSelections_DuplicateShop(t *testing.T) {
	db := newSelectionDB(t)
	ctx := context.Background()
	apptID := uuid.NewString()

	if err := CreateSelections(ctx, db, apptID, shortlistOf("s1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := CreateSelections(ctx, db, apptID, shortlistOf("s1"))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("repeat shop: want ErrDuplicate, got %v", err)
	}
	// Same shop for a different appointment is fine.
	if err := CreateSelections(ctx, db, uuid.NewString(), shortlistOf("s1")); err != nil {
		t.Fatalf("other appointment: %v", err)
	}
}

func TestDeleteSelection_Renumbers(t *testing.T) {
	db := newSelectionDB(t)
	ctx := context.Background()
	apptID := uuid.NewString()

	if err := CreateSelections(ctx, db, apptID, shortlistOf("s1", "s2", "s3")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := DeleteSelection(ctx, db, apptID, "s2"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	rows, _ := ListSelections(ctx, db, apptID)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].ShopID != "s1" || rows[0].PriorityOrder != 1 {
		t.Errorf("row 0 = %s/%d, want s1/1", rows[0].ShopID, rows[0].PriorityOrder)
	}
	if rows[1].ShopID != "s3" || rows[1].PriorityOrder != 2 {
		t.Errorf("row 1 = %s/%d, want s3/2", rows[1].ShopID, rows[1].PriorityOrder)
	}
}

func TestDeleteSelection_MissingShopIsNoop(t *testing.T) {
	db := newSelectionDB(t)
	ctx := context.Background()
	apptID := uuid.NewString()

	if err := CreateSelections(ctx, db, apptID, shortlistOf("s1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := DeleteSelection(ctx, db, apptID, "nope"); err != nil {
		t.Fatalf("no-op delete: %v", err)
	}
	if n, _ := CountSelections(ctx, db, apptID); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestGetSelection_NotFound(t *testing.T) {
	db := newSelectionDB(t)
	if _, err := GetSelection(context.Background(), db, uuid.NewString(), "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
