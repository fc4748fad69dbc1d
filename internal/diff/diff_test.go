package diff

import (
	"context"
	"errors"
	"testing"

	"adhunter/internal/model"
	"adhunter/internal/store"
)

type fakeListings struct {
	rows map[string]*model.Listing
	err  error
}

func (f *fakeListings) GetListing(_ context.Context, queryID, uid string) (*model.Listing, error) {
	if f.err != nil {
		return nil, f.err
	}
	l, ok := f.rows[queryID+"/"+uid]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeListings) UpsertListing(_ context.Context, l *model.Listing) error {
	cp := *l
	f.rows[l.QueryID+"/"+l.UID] = &cp
	return nil
}

func (f *fakeListings) CountListings(context.Context, string) (int64, error) {
	return int64(len(f.rows)), nil
}

func ptr[T any](v T) *T { return &v }

func baseListing() *model.Listing {
	return &model.Listing{
		UID: "fiat-1", QueryID: "q1", Name: "Fiat Panda", Price: ptr[int64](2500),
		URL: "https://www.subito.it/auto/fiat-1.htm", Location: ptr("Milano (MI)"),
	}
}

func TestHasChanged(t *testing.T) {
	ctx := context.Background()
	fake := &fakeListings{rows: map[string]*model.Listing{}}
	d := NewDetector(fake)

	l := baseListing()
	changed, err := d.HasChanged(ctx, l, "q1")
	if err != nil || !changed {
		t.Fatalf("missing prior should be changed: %v %v", changed, err)
	}
	_ = fake.UpsertListing(ctx, l)

	changed, err = d.HasChanged(ctx, baseListing(), "q1")
	if err != nil || changed {
		t.Fatalf("identical listing should be unchanged: %v %v", changed, err)
	}

	// 同一 uid 在另一个查询下是独立记录
	changed, _ = d.HasChanged(ctx, baseListing(), "q2")
	if !changed {
		t.Fatalf("listing under another query should be new")
	}

	cheaper := baseListing()
	cheaper.Price = ptr[int64](2300)
	changed, _ = d.HasChanged(ctx, cheaper, "q1")
	if !changed {
		t.Fatalf("price change should be detected")
	}
}

func TestHasChanged_StoreError(t *testing.T) {
	d := NewDetector(&fakeListings{err: errors.New("boom")})
	if _, err := d.HasChanged(context.Background(), baseListing(), "q1"); err == nil {
		t.Fatalf("expected store error")
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Listing)
		equal  bool
	}{
		{"identical", func(*model.Listing) {}, true},
		{"name case only", func(l *model.Listing) { l.Name = "FIAT panda" }, true},
		{"location case only", func(l *model.Listing) { l.Location = ptr("MILANO (mi)") }, true},
		{"name changed", func(l *model.Listing) { l.Name = "Fiat Punto" }, false},
		{"sold flipped", func(l *model.Listing) { l.Sold = true }, false},
		{"shipping flipped", func(l *model.Listing) { l.Shipping = true }, false},
		{"price to nil", func(l *model.Listing) { l.Price = nil }, false},
		{"price zero is not nil", func(l *model.Listing) { l.Price = ptr[int64](0) }, false},
		{"location removed", func(l *model.Listing) { l.Location = nil }, false},
		{"empty location is not nil", func(l *model.Listing) { l.Location = ptr("") }, false},
		{"image added", func(l *model.Listing) { l.ImageURL = ptr("https://img/x.jpg") }, false},
		{"url changed", func(l *model.Listing) { l.URL = "https://www.subito.it/auto/fiat-1-bis.htm" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := baseListing(), baseListing()
			tt.mutate(b)
			if got := Equal(a, b); got != tt.equal {
				t.Fatalf("Equal = %v, want %v", got, tt.equal)
			}
			if Equal(b, a) != tt.equal {
				t.Fatalf("Equal should be symmetric")
			}
		})
	}
	if !Equal(nil, nil) || Equal(baseListing(), nil) {
		t.Fatalf("nil handling")
	}
}
