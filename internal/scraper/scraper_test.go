package scraper

import (
	"slices"
	"testing"

	"house-prices-etl/internal/table"
)

const listingPage = `
<html><body>
<div class="results">
  <span class="p24_content">
    <span class="p24_price" content="1200000"> R 1 200 000 </span>
    <span class="p24_title">3 Bedroom House</span>
    <span class="p24_location">Claremont</span>
    <span class="p24_featureDetails" title="Bedrooms"><span>3</span></span>
    <span class="p24_featureDetails" title="Bathrooms"><span>2</span></span>
    <span class="p24_featureDetails" title="Parking Spaces"><span>1</span></span>
    <span class="p24_size"><span>120 m²</span></span>
  </span>
  <span class="p24_content">
    <span class="p24_price" content="850000">R 850 000</span>
    <span class="p24_title">2 Bedroom Apartment</span>
    <span class="p24_location">  Observatory </span>
    <span class="p24_featureDetails" title="Bedrooms"><span>2</span></span>
    <span class="p24_featureDetails" title="Bathrooms"><span>1</span></span>
    <span class="p24_size"><span>65 m²</span></span>
  </span>
</div>
<a class="pagelink next" href="/for-sale/cape-town/p2#top">Next</a>
</body></html>`

func property24Selectors() *Selectors {
	return &Selectors{
		RootSelector: "span.p24_content",
		Fields: []FieldMapping{
			{Field: table.ColPrice, Selector: "span.p24_price::attr(content)"},
			{Field: table.ColLocation, Selector: "span.p24_location::text"},
			{Field: table.ColBedroom, Selector: `span.p24_featureDetails[title="Bedrooms"] > span::text`},
			{Field: table.ColBathroom, Selector: `span.p24_featureDetails[title="Bathrooms"] > span::text`},
			{Field: table.ColGarage, Selector: `span.p24_featureDetails[title="Parking Spaces"] > span::text`},
			{Field: table.ColFloorSize, Selector: "span.p24_size > span::text"},
			{Field: table.ColType, Selector: "span.p24_title::text"},
		},
		NextPageLink: []string{"a.next"},
	}
}

func TestParsePanels(t *testing.T) {
	scr, err := NewScraper(property24Selectors())
	if err != nil {
		t.Fatalf("NewScraper: %v", err)
	}

	rows, err := scr.ParsePanels(listingPage)
	if err != nil {
		t.Fatalf("ParsePanels: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 panels, got %d", len(rows))
	}

	want := []string{"1200000", "Claremont", "3", "2", "1", "120 m²", "3 Bedroom House"}
	if got := rows[0].Strings(); !slices.Equal(got, want) {
		t.Errorf("row 0 = %q, want %q", got, want)
	}
	if rows[0].NullCount() != 0 {
		t.Errorf("row 0 should have no nulls")
	}
}

func TestMissingFieldYieldsNull(t *testing.T) {
	scr, err := NewScraper(property24Selectors())
	if err != nil {
		t.Fatalf("NewScraper: %v", err)
	}

	rows, err := scr.ParsePanels(listingPage)
	if err != nil {
		t.Fatalf("ParsePanels: %v", err)
	}

	// Во второй панели нет парковки
	second := rows[1]
	garage := slices.Index(scr.Columns(), table.ColGarage)
	if !second[garage].IsNull() {
		t.Errorf("garage should be null, got %q", second[garage].String())
	}
	if second.NullCount() != 1 {
		t.Errorf("expected exactly one null, got %d", second.NullCount())
	}
	if second[1].String() != "Observatory" {
		t.Errorf("location not trimmed: %q", second[1].String())
	}
}

func TestBlankValueIsNotNull(t *testing.T) {
	scr, err := NewScraper(&Selectors{
		RootSelector: "div.ad",
		Fields: []FieldMapping{
			{Field: "location", Selector: "span.loc::text"},
			{Field: "price", Selector: "span.price::attr(content)"},
		},
	})
	if err != nil {
		t.Fatalf("NewScraper: %v", err)
	}

	rows, err := scr.ParsePanels(`<div class="ad"><span class="loc">   </span><span class="price">1</span></div>`)
	if err != nil {
		t.Fatalf("ParsePanels: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	if rows[0][0].Kind != table.Text || rows[0][0].Str != "" {
		t.Errorf("blank text should stay present, got %+v", rows[0][0])
	}
	// атрибута нет: Null
	if !rows[0][1].IsNull() {
		t.Errorf("missing attribute should be null, got %+v", rows[0][1])
	}
}

func TestCompileSelector(t *testing.T) {
	tests := []struct {
		expr    string
		css     string
		extract Extract
		attr    string
		wantErr bool
	}{
		{"span.p24_price::attr(content)", "span.p24_price", ExtractAttr, "content", false},
		{"span.p24_location::text", "span.p24_location", ExtractOwnText, "", false},
		{"span.p24_size > span", "span.p24_size > span", ExtractText, "", false},
		{`span[title="Parking Spaces"] > span::text`, `span[title="Parking Spaces"] > span`, ExtractOwnText, "", false},
		{"", "", "", "", true},
		{"span[[", "", "", "", true},
	}

	for _, tt := range tests {
		sel, err := CompileSelector(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("CompileSelector(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if sel.CSS != tt.css || sel.Extract != tt.extract || sel.Attr != tt.attr {
			t.Errorf("CompileSelector(%q) = {%q %q %q}, want {%q %q %q}",
				tt.expr, sel.CSS, sel.Extract, sel.Attr, tt.css, tt.extract, tt.attr)
		}
	}
}

func TestFindNextPageLink(t *testing.T) {
	scr, err := NewScraper(property24Selectors())
	if err != nil {
		t.Fatalf("NewScraper: %v", err)
	}

	next, err := scr.FindNextPageLink(listingPage, "https://www.property24.com/for-sale/cape-town/432")
	if err != nil {
		t.Fatalf("FindNextPageLink: %v", err)
	}
	if next != "https://www.property24.com/for-sale/cape-town/p2" {
		t.Errorf("next = %q", next)
	}

	next, err = scr.FindNextPageLink(`<html><body></body></html>`, "https://example.com")
	if err != nil {
		t.Fatalf("FindNextPageLink: %v", err)
	}
	if next != "" {
		t.Errorf("expected no next link, got %q", next)
	}
}
