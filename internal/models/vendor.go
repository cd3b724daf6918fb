package models

// Vendor is a third party business object tracked for compliance.
type Vendor struct {
	Base
	Dates
	URL          string
	ReferenceURL string
}

func (v *Vendor) TypeName() string { return TypeVendor }

func (v *Vendor) Clone() Object {
	c := *v
	return &c
}
