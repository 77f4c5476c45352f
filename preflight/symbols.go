package preflight

import (
	"reflect"

	"github.com/traefik/yaegi/interp"
)

// ImportPath is the path config files import this package by.
const ImportPath = "github.com/wolfeidau/stat-ignition/preflight"

// Symbols exposes this package to config files evaluated by YaegiIncluder.
var Symbols = interp.Exports{
	ImportPath + "/preflight": {
		"Config":       reflect.ValueOf((*Config)(nil)),
		"NewConfig":    reflect.ValueOf(NewConfig),
		"NewPreflight": reflect.ValueOf(NewPreflight),
		"Preflight":    reflect.ValueOf((*Preflight)(nil)),
	},
}
