package host

import (
	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// BridgeID derives the identifier under which the bridge announces
// itself, falling back to the configured name when the machine has no
// usable id.
func BridgeID(name string) string {
	id, err := machineid.ProtectedID("nanobridge")
	if err != nil {
		glog.Warningf("machine id unavailable: %v", err)
		return name
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}
