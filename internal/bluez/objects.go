package bluez

import (
	"slices"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/thereceipt/bleprint/internal/printer"
)

// managedObjects is the reply of ObjectManager.GetManagedObjects
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Candidate is a discovered device offered to the user
type Candidate struct {
	Path    dbus.ObjectPath
	Address string
	Name    string
	RSSI    int16
	// Printer is set when the device advertises the print service
	Printer bool
	Paired  bool
}

// Label is how the candidate is shown in pickers
func (c Candidate) Label() string {
	if c.Name == "" {
		return c.Address
	}
	return c.Name
}

type charInfo struct {
	path  dbus.ObjectPath
	uuid  string
	props printer.Properties
}

// candidates lists the devices known to adapter, likely printers first
func candidates(objects managedObjects, adapter dbus.ObjectPath, serviceUUID string) []Candidate {
	var out []Candidate
	for path, ifaces := range objects {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		if owner, _ := variant[dbus.ObjectPath](props, "Adapter"); owner != adapter {
			continue
		}

		c := Candidate{Path: path}
		c.Address, _ = variant[string](props, "Address")
		c.Name, _ = variant[string](props, "Name")
		if c.Name == "" {
			c.Name, _ = variant[string](props, "Alias")
		}
		c.RSSI, _ = variant[int16](props, "RSSI")
		c.Paired, _ = variant[bool](props, "Paired")
		uuids, _ := variant[[]string](props, "UUIDs")
		c.Printer = containsUUID(uuids, serviceUUID)
		if c.Address == "" {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Printer != b.Printer {
			return a.Printer
		}
		if a.RSSI != b.RSSI {
			return a.RSSI > b.RSSI
		}
		return a.Label() < b.Label()
	})
	return out
}

// findDevice returns the object path of the device with address under adapter
func findDevice(objects managedObjects, adapter dbus.ObjectPath, address string) (dbus.ObjectPath, string, bool) {
	for path, ifaces := range objects {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		if owner, _ := variant[dbus.ObjectPath](props, "Adapter"); owner != adapter {
			continue
		}
		if addr, _ := variant[string](props, "Address"); strings.EqualFold(addr, address) {
			name, _ := variant[string](props, "Name")
			return path, name, true
		}
	}
	return "", "", false
}

// characteristics lists the characteristics of serviceUUID on device. It
// reports false if the device does not expose that service.
func characteristics(objects managedObjects, device dbus.ObjectPath, serviceUUID string) ([]charInfo, bool) {
	services := map[dbus.ObjectPath]bool{}
	for path, ifaces := range objects {
		props, ok := ifaces[serviceIface]
		if !ok {
			continue
		}
		owner, _ := variant[dbus.ObjectPath](props, "Device")
		uuid, _ := variant[string](props, "UUID")
		if owner == device && strings.EqualFold(uuid, serviceUUID) {
			services[path] = true
		}
	}
	if len(services) == 0 {
		return nil, false
	}

	var out []charInfo
	for path, ifaces := range objects {
		props, ok := ifaces[charIface]
		if !ok {
			continue
		}
		if service, _ := variant[dbus.ObjectPath](props, "Service"); !services[service] {
			continue
		}
		uuid, _ := variant[string](props, "UUID")
		flags, _ := variant[[]string](props, "Flags")
		out = append(out, charInfo{path: path, uuid: uuid, props: flagProperties(flags)})
	}

	// object paths follow GATT handle order
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out, true
}

func flagProperties(flags []string) printer.Properties {
	return printer.Properties{
		Write:                slices.Contains(flags, "write"),
		WriteWithoutResponse: slices.Contains(flags, "write-without-response"),
	}
}

func containsUUID(uuids []string, want string) bool {
	for _, u := range uuids {
		if strings.EqualFold(u, want) {
			return true
		}
	}
	return false
}

func variant[T any](props map[string]dbus.Variant, key string) (T, bool) {
	var zero T
	v, ok := props[key]
	if !ok {
		return zero, false
	}
	t, ok := v.Value().(T)
	return t, ok
}
