package models

// ChangeKind classifies what the diff pass observed for one listing.
type ChangeKind string

const (
	ChangeNew          ChangeKind = "new"
	ChangePriceChanged ChangeKind = "price_changed"
	ChangeSold         ChangeKind = "sold"
)

// Change is one detected difference between a crawled listing and the
// stored record. OldPrice is populated only for ChangePriceChanged.
type Change struct {
	Kind     ChangeKind
	Listing  *Listing
	OldPrice int
}
