package dictionary

import "github.com/tinoosan/millmeter/internal/ledger"

// CategoryDef describes how a meter category is labelled and charted.
type CategoryDef struct {
	Code        ledger.Category    `json:"code"`
	Label       string             `json:"label"`
	MeterLookup ledger.LookupTable `json:"meter_lookup"`
	// Unit is what operators enter; DisplayUnit is what dashboards show.
	Unit        string `json:"unit"`
	DisplayUnit string `json:"display_unit"`
	// Scale converts Unit to DisplayUnit by division.
	Scale int64 `json:"scale"`
	// Gauge marks categories that appear on the dashboard.
	Gauge bool `json:"gauge"`
}

var curated = map[ledger.Category]CategoryDef{
	ledger.CategoryProduct:  {Code: ledger.CategoryProduct, Label: "Product Movement", MeterLookup: ledger.LookupProduct, Unit: "kg", DisplayUnit: "t", Scale: 1000, Gauge: true},
	ledger.CategoryTransfer: {Code: ledger.CategoryTransfer, Label: "Transfer Movement", MeterLookup: ledger.LookupTransferType, Unit: "kg", DisplayUnit: "t", Scale: 1000, Gauge: true},
	ledger.CategoryStage:    {Code: ledger.CategoryStage, Label: "Water Stage Movement", MeterLookup: ledger.LookupWaterStage, Unit: "l", DisplayUnit: "l", Scale: 1, Gauge: false},
}

// GaugeBand is one coloured range of a dashboard gauge, in display units.
type GaugeBand struct {
	From  int64  `json:"from"`
	To    int64  `json:"to"`
	Color string `json:"color"`
}

// GaugeMax is the upper bound of every dashboard gauge axis.
const GaugeMax = 1000

// GaugeBands are the fixed bands shown behind the gauge needle.
var GaugeBands = []GaugeBand{
	{From: 0, To: 250, Color: "#D2B48C"},
	{From: 250, To: 500, Color: "#DEB887"},
	{From: 500, To: 750, Color: "#F4A460"},
	{From: 750, To: 1000, Color: "#CD853F"},
}

// For returns the definition of c.
func For(c ledger.Category) (CategoryDef, bool) {
	d, ok := curated[c]
	return d, ok
}

// All returns every definition in submission order.
func All() []CategoryDef {
	out := make([]CategoryDef, 0, len(curated))
	for _, c := range ledger.Categories() {
		out = append(out, curated[c])
	}
	return out
}

// GaugeCategories returns the categories charted on the dashboard by default.
func GaugeCategories() []ledger.Category {
	out := make([]ledger.Category, 0, len(curated))
	for _, c := range ledger.Categories() {
		if curated[c].Gauge {
			out = append(out, c)
		}
	}
	return out
}

// DevLookups is the reference data loaded by DEV_SEED and the in-memory backend.
func DevLookups() map[ledger.LookupTable][]string {
	return map[ledger.LookupTable][]string{
		ledger.LookupMill:              {"Mill A", "Mill B", "Mill C"},
		ledger.LookupMiller:            {"J. Mokoena", "P. Naidoo"},
		ledger.LookupShift:             {"Day", "Night"},
		ledger.LookupProduct:           {"Cake Flour", "Bread Flour", "Bran"},
		ledger.LookupTransferType:      {"Bin to Mill", "Mill to Packing"},
		ledger.LookupWaterStage:        {"Intake", "Dampening"},
		ledger.LookupWaterConditioning: {"Cold", "Tempered"},
	}
}
