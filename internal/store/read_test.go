package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vicbeneder/micruler/internal/breakpoint"
	"github.com/vicbeneder/micruler/internal/ir"
)

func TestReadTable_RoundTripsInOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	res := createTestMerge()

	if _, err := s.WriteTable(ctx, "t", res); err != nil {
		t.Fatalf("WriteTable() failed: %v", err)
	}

	got, err := s.ReadTable(ctx, "t")
	if err != nil {
		t.Fatalf("ReadTable() failed: %v", err)
	}
	if diff := cmp.Diff(res.Records, got); diff != "" {
		t.Errorf("ReadTable mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTable_RestrictionsSurvive(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	row := createTestRecord("Enterobacterales", "Amoxicillin-clavulanic acid", 32, 32)
	row.Route = "oral"
	row.Indication = "uncomplicated UTI"
	row.Exception = "Proteus"
	row.HighExposure = true

	if _, err := s.WriteTable(ctx, "t", breakpoint.MergeResult{Records: []ir.BreakpointRecord{row}}); err != nil {
		t.Fatalf("WriteTable() failed: %v", err)
	}

	got, err := s.ReadTable(ctx, "t")
	if err != nil {
		t.Fatalf("ReadTable() failed: %v", err)
	}
	if len(got) != 1 || got[0] != row {
		t.Errorf("got %+v, want %+v", got, row)
	}
}

func TestReadTable_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadTable(context.Background(), "missing")
	if !errors.Is(err, ErrTableNotFound) {
		t.Errorf("err = %v, want ErrTableNotFound", err)
	}
}

func TestReadTable_EmptyTableReturnsEmptySlice(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.WriteTable(ctx, "empty", breakpoint.MergeResult{}); err != nil {
		t.Fatalf("WriteTable() failed: %v", err)
	}

	got, err := s.ReadTable(ctx, "empty")
	if err != nil {
		t.Fatalf("ReadTable() failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %#v, want empty non-nil slice", got)
	}
}

func TestReadDropped(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	res := createTestMerge()

	if _, err := s.WriteTable(ctx, "t", res); err != nil {
		t.Fatalf("WriteTable() failed: %v", err)
	}

	got, err := s.ReadDropped(ctx, "t")
	if err != nil {
		t.Fatalf("ReadDropped() failed: %v", err)
	}
	if diff := cmp.Diff(res.Dropped, got); diff != "" {
		t.Errorf("ReadDropped mismatch (-want +got):\n%s", diff)
	}
}

func TestReadIndex_Resolves(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.WriteTable(ctx, "t", createTestMerge()); err != nil {
		t.Fatalf("WriteTable() failed: %v", err)
	}

	ix, err := s.ReadIndex(ctx, "t")
	if err != nil {
		t.Fatalf("ReadIndex() failed: %v", err)
	}
	if ix.Len() != 3 {
		t.Errorf("Len() = %d, want 3", ix.Len())
	}

	rec, err := ix.Resolve(ir.Lineage{"Staphylococcus aureus", "Staphylococcus"}, "Cefoxitin")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if rec.SThreshold != 4 {
		t.Errorf("SThreshold = %v, want 4", rec.SThreshold)
	}
}

func TestTables_OrderedByName(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"b", "a", "C"} {
		if _, err := s.WriteTable(ctx, name, createTestMerge()); err != nil {
			t.Fatalf("WriteTable(%s) failed: %v", name, err)
		}
	}

	tables, err := s.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables() failed: %v", err)
	}
	var names []string
	for _, tb := range tables {
		names = append(names, tb.Name)
	}
	if diff := cmp.Diff([]string{"C", "a", "b"}, names); diff != "" {
		t.Errorf("Tables order mismatch (-want +got):\n%s", diff)
	}
}

func TestTables_Empty(t *testing.T) {
	s := createTestStore(t)

	tables, err := s.Tables(context.Background())
	if err != nil {
		t.Fatalf("Tables() failed: %v", err)
	}
	if tables == nil || len(tables) != 0 {
		t.Errorf("got %#v, want empty non-nil slice", tables)
	}
}

func TestLatest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.Latest(ctx); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("Latest() on empty store err = %v, want ErrTableNotFound", err)
	}

	for _, name := range []string{"z", "a"} {
		if _, err := s.WriteTable(ctx, name, createTestMerge()); err != nil {
			t.Fatalf("WriteTable(%s) failed: %v", name, err)
		}
	}

	latest, err := s.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() failed: %v", err)
	}
	if latest.Name != "a" {
		t.Errorf("Latest().Name = %q, want %q", latest.Name, "a")
	}
}

func TestLookup_ExactPair(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.WriteTable(ctx, "t", createTestMerge()); err != nil {
		t.Fatalf("WriteTable() failed: %v", err)
	}

	got, err := s.Lookup(ctx, "t", "Enterococcus", "Cefoxitin")
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if len(got) != 1 || got[0].Source != ir.SourceIntrinsic {
		t.Errorf("got %+v, want the intrinsic row", got)
	}

	got, err = s.Lookup(ctx, "t", "enterococcus", "cefoxitin")
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %+v, want no rows for case-mismatched names", got)
	}
}
