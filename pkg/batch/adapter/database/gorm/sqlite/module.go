package sqlite

import (
	"go.uber.org/fx"
)

// Module exports the SQLite DBProvider for dependency injection.
var Module = fx.Options(
	fx.Provide(NewProvider),
)
