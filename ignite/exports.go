package ignite

import (
	"reflect"

	"github.com/traefik/yaegi/interp"
)

// ImportPath is the path config files import to reach the handle.
const ImportPath = "github.com/wolfeidau/stat-ignition/ignite"

// Exports returns symbols bound to h for config files, so a preflight can
// write
//
//	import "github.com/wolfeidau/stat-ignition/ignite"
//
//	ignite.DisableAutoHandoff()
func (h *Ignition) Exports() interp.Exports {
	return interp.Exports{
		ImportPath + "/ignite": {
			"DisableAutoHandoff":   reflect.ValueOf(h.DisableAutoHandoff),
			"IsAutoHandoffEnabled": reflect.ValueOf(h.IsAutoHandoffEnabled),
			"IsChokeOn":            reflect.ValueOf(h.IsChokeOn),
			"IsStarted":            reflect.ValueOf(h.IsStarted),
		},
	}
}
