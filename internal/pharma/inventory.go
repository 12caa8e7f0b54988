package pharma

import "strings"

// Drug is one formulary line item. StockQty nil means quantity untracked.
type Drug struct {
	Name     string `json:"name"`
	StockQty *int   `json:"stock_qty,omitempty"`
}

// UnavailableDrug is a formulary item known to be unobtainable locally.
type UnavailableDrug struct {
	Name                string `json:"name"`
	Reason              string `json:"reason,omitempty"`
	SuggestedSubstitute string `json:"suggested_substitute,omitempty"`
}

// Inventory is the local drug formulary, an external configuration
// collaborator loaded from JSON.
type Inventory struct {
	Facility         string            `json:"facility,omitempty"`
	AvailableDrugs   []Drug            `json:"available_drugs"`
	UnavailableDrugs []UnavailableDrug `json:"unavailable_drugs,omitempty"`
}

// Listed reports whether the drug appears in the available list at all.
func (inv Inventory) Listed(name string) bool {
	_, ok := inv.lookup(name)
	return ok
}

// OutOfStock reports whether the drug is listed with zero stock, or absent
// from a non-empty available list.
func (inv Inventory) OutOfStock(name string) bool {
	d, ok := inv.lookup(name)
	if ok {
		return d.StockQty != nil && *d.StockQty == 0
	}
	return len(inv.AvailableDrugs) > 0
}

func (inv Inventory) lookup(name string) (Drug, bool) {
	name = strings.ToLower(name)
	for _, d := range inv.AvailableDrugs {
		if strings.ToLower(d.Name) == name {
			return d, true
		}
	}
	return Drug{}, false
}

// Check compares proposed drugs against the formulary and returns alerts for
// anything the pharmacy cannot dispense. With no inventory data at all, no
// alerts are raised.
func (inv Inventory) Check(proposed []string) []InventoryAlert {
	alerts := []InventoryAlert{}

	unavailable := map[string]UnavailableDrug{}
	for _, d := range inv.UnavailableDrugs {
		unavailable[strings.ToLower(d.Name)] = d
	}

	for _, drug := range proposed {
		key := strings.ToLower(drug)

		if u, ok := unavailable[key]; ok {
			reason := u.Reason
			if reason == "" {
				reason = "Not in stock"
			}
			sub := u.SuggestedSubstitute
			if sub == "" {
				sub = "None"
			}
			alerts = append(alerts, InventoryAlert{
				Drug:       drug,
				Status:     "UNAVAILABLE",
				Message:    drug + " unavailable: " + reason + ". Suggested substitute: " + sub,
				Substitute: sub,
			})
			continue
		}

		if d, ok := inv.lookup(key); ok {
			if d.StockQty != nil && *d.StockQty == 0 {
				alerts = append(alerts, InventoryAlert{
					Drug:    drug,
					Status:  "OUT_OF_STOCK",
					Message: drug + " listed but stock quantity is 0 — effectively out of stock.",
				})
			}
			continue
		}

		if len(inv.AvailableDrugs) > 0 {
			alerts = append(alerts, InventoryAlert{
				Drug:    drug,
				Status:  "UNAVAILABLE",
				Message: drug + " not found in local inventory.",
			})
		}
	}
	return alerts
}

// title uppercases the first letter of a drug name for display.
func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
