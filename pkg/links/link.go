// Package links holds the dashboard navigation model and the logic that
// merges peer-contributed links with operator-configured ones into the
// final, ordered sidebar lists.
package links

import (
	"github.com/go-playground/validator/v10"
)

// Location is the navigation area a link is rendered in.
type Location string

const (
	LocationMenu          Location = "menu"
	LocationExternal      Location = "external"
	LocationQuick         Location = "quick"
	LocationDocumentation Location = "documentation"
)

// Locations lists every navigation area in the order the dashboard renders them.
var Locations = []Location{LocationMenu, LocationExternal, LocationQuick, LocationDocumentation}

// IsValid reports whether l is one of the known navigation areas.
func (l Location) IsValid() bool {
	switch l {
	case LocationMenu, LocationExternal, LocationQuick, LocationDocumentation:
		return true
	}
	return false
}

// LinkItem is a single navigation entry shown by the dashboard.
type LinkItem struct {
	// Text is the label shown to the user. Ordering and preferred-order matching key on it.
	Text string `json:"text" validate:"required"`
	// Link is the URL or in-dashboard path the entry points to.
	Link string `json:"link" validate:"required"`
	// Type is the entry kind understood by the dashboard frontend ("item", "section", ...).
	Type string `json:"type" validate:"required"`
	Icon string `json:"icon" validate:"required"`
	// Location is overwritten with the list the item ends up in.
	Location Location `json:"location,omitempty"`
	Desc     string   `json:"desc,omitempty"`

	// SourceApp names the peer application that contributed the item.
	// Empty for operator-configured items and never published.
	SourceApp string `json:"-"`
}

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
}

// Validate checks that the mandatory fields of the item are present.
func (i LinkItem) Validate() error {
	return validate.Struct(i)
}
