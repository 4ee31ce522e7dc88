package session

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cuadre/internal/core"
)

func TestMemoryStore_LoadSave(t *testing.T) {
	s := NewMemoryStore(10, time.Hour)
	ctx := context.Background()

	f, err := s.Load(ctx, "a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !f.Initialized || f.ItemCount() != 0 {
		t.Fatalf("expected fresh form, got %+v", f)
	}

	f.AddCardPayment(decimal.NewFromInt(100))
	if err := s.Save(ctx, "a", f); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	f.AddCardPayment(decimal.NewFromInt(5))

	got, _ := s.Load(ctx, "a")
	if len(got.CardPayments) != 1 {
		t.Fatalf("stored form changed through caller copy: %v", got.CardPayments)
	}
	got.AddCardPayment(decimal.NewFromInt(7))
	again, _ := s.Load(ctx, "a")
	if len(again.CardPayments) != 1 {
		t.Fatalf("loaded copy shares slices with the store")
	}

	other, _ := s.Load(ctx, "b")
	if other.ItemCount() != 0 {
		t.Fatalf("sessions must be isolated")
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if reset, _ := s.Load(ctx, "a"); reset.ItemCount() != 0 {
		t.Fatalf("deleted session should load fresh")
	}
}

func TestMemoryStore_Eviction(t *testing.T) {
	s := NewMemoryStore(1, time.Hour)
	ctx := context.Background()

	f := core.NewForm()
	f.AddCardPayment(decimal.NewFromInt(1))
	_ = s.Save(ctx, "a", f)
	_ = s.Save(ctx, "b", f)

	if s.Size() != 1 {
		t.Fatalf("expected one live session, got %d", s.Size())
	}
	if got, _ := s.Load(ctx, "a"); got.ItemCount() != 0 {
		t.Fatalf("oldest session should have been evicted")
	}
	if s.Cleaner() == nil {
		t.Fatalf("Cleaner must expose the cache")
	}
}
