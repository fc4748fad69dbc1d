package filter

import (
	"testing"

	"adhunter/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		name    string
		query   model.SearchQuery
		listing model.Listing
		want    Reason
		skip    bool
	}{
		{
			name:    "sold takes precedence over everything",
			query:   model.SearchQuery{SkipSold: true, SkipNoPrice: true, MinPrice: 100, Pattern: ptr("bmw")},
			listing: model.Listing{Name: "fiat", Sold: true},
			want:    ReasonSold, skip: true,
		},
		{
			name:    "sold ignored when not requested",
			query:   model.SearchQuery{MinPrice: 1},
			listing: model.Listing{Name: "fiat", Sold: true, Price: ptr[int64](10)},
		},
		{
			name:    "no price before pattern",
			query:   model.SearchQuery{SkipNoPrice: true, MinPrice: 1, Pattern: ptr("bmw")},
			listing: model.Listing{Name: "fiat"},
			want:    ReasonNoPrice, skip: true,
		},
		{
			name:    "missing price passes range check",
			query:   model.SearchQuery{MinPrice: 100, MaxPrice: 200},
			listing: model.Listing{Name: "fiat"},
		},
		{
			name:    "below min",
			query:   model.SearchQuery{MinPrice: 100},
			listing: model.Listing{Name: "fiat", Price: ptr[int64](99)},
			want:    ReasonPriceRange, skip: true,
		},
		{
			name:    "zero max is unbounded",
			query:   model.SearchQuery{MinPrice: 100, MaxPrice: 0},
			listing: model.Listing{Name: "fiat", Price: ptr[int64](9_000_000)},
		},
		{
			name:    "above max",
			query:   model.SearchQuery{MinPrice: 1, MaxPrice: 500},
			listing: model.Listing{Name: "fiat", Price: ptr[int64](501)},
			want:    ReasonPriceRange, skip: true,
		},
		{
			name:    "range bounds inclusive",
			query:   model.SearchQuery{MinPrice: 100, MaxPrice: 500},
			listing: model.Listing{Name: "fiat", Price: ptr[int64](500)},
		},
		{
			name:    "range before pattern",
			query:   model.SearchQuery{MinPrice: 1, MaxPrice: 5, Pattern: ptr("bmw")},
			listing: model.Listing{Name: "fiat", Price: ptr[int64](10)},
			want:    ReasonPriceRange, skip: true,
		},
		{
			name:    "pattern is case-insensitive search",
			query:   model.SearchQuery{MinPrice: 1, Pattern: ptr("panda\\s+4x4")},
			listing: model.Listing{Name: "Fiat PANDA 4X4 Climbing", Price: ptr[int64](10)},
		},
		{
			name:    "pattern mismatch",
			query:   model.SearchQuery{MinPrice: 1, Pattern: ptr("^bmw")},
			listing: model.Listing{Name: "Fiat Panda", Price: ptr[int64](10)},
			want:    ReasonPatternMismatch, skip: true,
		},
		{
			name:    "invalid pattern never matches",
			query:   model.SearchQuery{MinPrice: 1, Pattern: ptr("(unclosed")},
			listing: model.Listing{Name: "(unclosed", Price: ptr[int64](10)},
			want:    ReasonPatternMismatch, skip: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, skip := ShouldSkip(&tt.query, &tt.listing)
			if skip != tt.skip || got != tt.want {
				t.Fatalf("ShouldSkip = (%q, %v), want (%q, %v)", got, skip, tt.want, tt.skip)
			}
		})
	}
}

func TestReasonString(t *testing.T) {
	tests := []struct {
		reason Reason
		label  string
		text   string
	}{
		{ReasonSold, "sold", "item is sold"},
		{ReasonNoPrice, "no_price", "the price is missing"},
		{ReasonPriceRange, "price_range", "price range not matched"},
		{ReasonPatternMismatch, "pattern_mismatch", "pattern not matched"},
		{Reason("custom"), "custom", "custom"},
	}
	for _, tt := range tests {
		if string(tt.reason) != tt.label {
			t.Fatalf("label = %q, want %q", string(tt.reason), tt.label)
		}
		if got := tt.reason.String(); got != tt.text {
			t.Fatalf("%s: String() = %q, want %q", tt.label, got, tt.text)
		}
	}
}
