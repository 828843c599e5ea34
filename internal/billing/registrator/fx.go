package registrator

import (
	"go.uber.org/fx"
)

var Module = fx.Module("registrator",
	fx.Provide(
		NewManager,
		NewPackageRegistrator,
		NewOfferingRegistrator,
	),
	fx.Invoke(func(m *Manager, pkg *PackageRegistrator, off *OfferingRegistrator) {
		m.AddRegistrator(pkg)
		m.AddRegistrator(off)
	}),
)
