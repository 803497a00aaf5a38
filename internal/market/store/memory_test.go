package store_test

import (
	"testing"

	"github.com/jmerrifield20/cropledger/internal/ledger"
	"github.com/jmerrifield20/cropledger/internal/market/model"
	"github.com/jmerrifield20/cropledger/internal/market/store"
)

func TestMemoryStore(t *testing.T) {
	runContract(t, func(t *testing.T) store.Store {
		return store.NewMemoryStore()
	})
}

func TestMemoryStore_ReadsAreCopies(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, "CROP_WHEAT_1", "TOKEN_1", "F1")

	tok, _ := s.GetToken(ctx, "TOKEN_1")
	tok.Status = model.TokenSold

	again, _ := s.GetToken(ctx, "TOKEN_1")
	if again.Status != model.TokenCreated {
		t.Errorf("mutating a read changed the store: status %s", again.Status)
	}

	entries, _ := s.Entries(ctx)
	entries[0].Data[0] ^= 0x01
	if report, _ := s.Verify(ctx); !report.Valid {
		t.Errorf("mutating a read entry broke the stored chain: %+v", report)
	}
}

func TestMemoryStore_TamperDetected(t *testing.T) {
	s := store.NewMemoryStore()
	for _, id := range []string{"1", "2", "3"} {
		seed(t, s, "CROP_WHEAT_"+id, "TOKEN_"+id, "F1")
	}

	e, _ := s.Get(ctx, 2)
	e.Actor = "F2"
	s.Tamper(2, e)

	report, err := s.Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Valid || report.BrokenSeq != 2 || report.TotalEntries != 3 {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.Failure == nil || report.Failure.Seq != 2 {
		t.Fatalf("report should carry the integrity error for entry 2, got %v", report.Failure)
	}
	if report.Message != (&ledger.IntegrityError{Seq: 2, Reason: report.Failure.Reason}).Error() {
		t.Errorf("message should describe the failure: %q", report.Message)
	}
}
