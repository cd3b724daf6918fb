package objects

import (
	"github.com/JonMunkholm/grc/internal/core"
	"github.com/JonMunkholm/grc/internal/models"
)

var vendorDefinition = core.ObjectDefinition{
	Name:       "Vendor",
	TypeName:   models.TypeVendor,
	SlugPrefix: "VENDOR",
	New:        func() models.Object { return &models.Vendor{} },
	Validate:   validateDates,
	Columns: []core.Column{
		codeColumn,
		titleColumn,
		descriptionColumn,
		{Key: "url", DisplayName: "Vendor URL", Aliases: []string{"URL"}},
		{Key: "reference_url", DisplayName: "Reference URL"},
		{Key: "start_date", DisplayName: "Effective Date", Aliases: []string{"Start Date"}},
		{Key: "end_date", DisplayName: "Stop Date", Aliases: []string{"End Date"}},
	},
}

func registerVendorHandlers() {
	core.RegisterHandlers(models.TypeVendor, map[string]core.HandlerFactory{
		"url": core.URLField(
			func(o models.Object) string { return o.(*models.Vendor).URL },
			func(o models.Object, v string) { o.(*models.Vendor).URL = v },
		),
		"reference_url": core.URLField(
			func(o models.Object) string { return o.(*models.Vendor).ReferenceURL },
			func(o models.Object, v string) { o.(*models.Vendor).ReferenceURL = v },
		),
	})
}
