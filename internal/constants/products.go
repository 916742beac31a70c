// Package constants defines the product catalog and account limits.
// Prices here are the single source of truth: client-supplied prices are
// compared against this table and rejected on mismatch.
package constants

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductFamily groups products by the provisioning action their
// fulfillment performs.
type ProductFamily string

const (
	FamilyScraper   ProductFamily = "scraper"   // account create/extend
	FamilyValidator ProductFamily = "validator" // license key allocation
	FamilyFinder    ProductFamily = "finder"    // account with usage quotas
)

// ProductKind distinguishes an initial purchase from a renewal.
type ProductKind string

const (
	KindPurchase ProductKind = "purchase"
	KindRenewal  ProductKind = "renewal"
)

// RenewalPeriod is attached to an order at creation time. Fulfillment
// dispatches on it structurally; there is no free-text parsing.
type RenewalPeriod string

const (
	RenewalNone      RenewalPeriod = ""
	RenewalMonthly   RenewalPeriod = "monthly"
	RenewalQuarterly RenewalPeriod = "quarterly"
	RenewalYearly    RenewalPeriod = "yearly"
)

// AddTo returns t advanced by the renewal period.
func (p RenewalPeriod) AddTo(t time.Time) time.Time {
	switch p {
	case RenewalMonthly:
		return t.AddDate(0, 1, 0)
	case RenewalQuarterly:
		return t.AddDate(0, 3, 0)
	case RenewalYearly:
		return t.AddDate(1, 0, 0)
	default:
		return t
	}
}

// Product describes one purchasable item.
type Product struct {
	ID          string
	Name        string
	OrderCode   string // short code embedded in order IDs
	Family      ProductFamily
	Kind        ProductKind
	Renewal     RenewalPeriod
	AccountType string // account tier provisioned on purchase, empty for license products
	PriceCNY    decimal.Decimal
	PriceUSD    decimal.Decimal
}

// InitialExpiryDays is the subscription length granted on a first
// scraper purchase.
const InitialExpiryDays = 30

var products = map[string]Product{
	"gmaps_standard": {
		ID: "gmaps_standard", Name: "Google Maps Scraper Standard",
		OrderCode: "gs", Family: FamilyScraper, Kind: KindPurchase, AccountType: AccountTypeStandard,
		PriceCNY: decimal.RequireFromString("34.30"),
		PriceUSD: decimal.RequireFromString("4.99"),
	},
	"gmaps_pro": {
		ID: "gmaps_pro", Name: "Google Maps Scraper Pro",
		OrderCode: "gp", Family: FamilyScraper, Kind: KindPurchase, AccountType: AccountTypePro,
		PriceCNY: decimal.RequireFromString("68.60"),
		PriceUSD: decimal.RequireFromString("9.99"),
	},
	"gmaps_renewal_1m": {
		ID: "gmaps_renewal_1m", Name: "Google Maps Scraper Renewal (1 month)",
		OrderCode: "gr", Family: FamilyScraper, Kind: KindRenewal, Renewal: RenewalMonthly,
		PriceCNY: decimal.RequireFromString("34.30"),
		PriceUSD: decimal.RequireFromString("4.99"),
	},
	"gmaps_renewal_3m": {
		ID: "gmaps_renewal_3m", Name: "Google Maps Scraper Renewal (3 months)",
		OrderCode: "gr", Family: FamilyScraper, Kind: KindRenewal, Renewal: RenewalQuarterly,
		PriceCNY: decimal.RequireFromString("88.20"),
		PriceUSD: decimal.RequireFromString("12.99"),
	},
	"gmaps_renewal_12m": {
		ID: "gmaps_renewal_12m", Name: "Google Maps Scraper Renewal (12 months)",
		OrderCode: "gr", Family: FamilyScraper, Kind: KindRenewal, Renewal: RenewalYearly,
		PriceCNY: decimal.RequireFromString("274.40"),
		PriceUSD: decimal.RequireFromString("39.99"),
	},
	"email_validator": {
		ID: "email_validator", Name: "Email Validator",
		OrderCode: "ev", Family: FamilyValidator, Kind: KindPurchase,
		PriceCNY: decimal.RequireFromString("48.30"),
		PriceUSD: decimal.RequireFromString("6.99"),
	},
	"whatsapp_validator": {
		ID: "whatsapp_validator", Name: "WhatsApp Validator",
		OrderCode: "wv", Family: FamilyValidator, Kind: KindPurchase,
		PriceCNY: decimal.RequireFromString("48.30"),
		PriceUSD: decimal.RequireFromString("6.99"),
	},
	"email_finder_basic": {
		ID: "email_finder_basic", Name: "Email Finder Basic",
		OrderCode: "ef", Family: FamilyFinder, Kind: KindPurchase, AccountType: AccountTypeFinder,
		PriceCNY: decimal.RequireFromString("20.30"),
		PriceUSD: decimal.RequireFromString("2.99"),
	},
	"email_finder_pro": {
		ID: "email_finder_pro", Name: "Email Finder Pro",
		OrderCode: "ep", Family: FamilyFinder, Kind: KindPurchase, AccountType: AccountTypeFinder,
		PriceCNY: decimal.RequireFromString("47.60"),
		PriceUSD: decimal.RequireFromString("6.99"),
	},
}

// GetProduct looks up a product by ID.
func GetProduct(id string) (Product, bool) {
	p, ok := products[id]
	return p, ok
}

// PriceFor returns the authoritative price for a product in the given
// currency ("CNY" or "USD"). Unknown products or currencies return
// ok=false.
func PriceFor(productID, currency string) (decimal.Decimal, bool) {
	p, ok := products[productID]
	if !ok {
		return decimal.Zero, false
	}
	switch currency {
	case "CNY":
		return p.PriceCNY, true
	case "USD":
		return p.PriceUSD, true
	}
	return decimal.Zero, false
}

// AllProducts returns the catalog. The returned slice is a copy.
func AllProducts() []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		out = append(out, p)
	}
	return out
}
