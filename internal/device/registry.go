package device

import (
	"encoding/json"
	"fmt"
	"os"
)

// Registry holds the configured device inventory in declaration order.
// It is immutable after load: the aggregation endpoint's response order
// is defined by the order devices appear in the inventory file.
type Registry struct {
	devices []Descriptor
	byName  map[string]int
}

// inventoryFile is the on-disk shape of devices.json.
type inventoryFile struct {
	Devices []Descriptor `json:"devices"`
}

// LoadRegistry reads and validates the device inventory file.
// Any validation failure is fatal: a misconfigured inventory means
// every aggregation response would be wrong.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading device inventory %s: %w", path, err)
	}

	var file inventoryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing device inventory %s: %w", path, err)
	}

	if len(file.Devices) == 0 {
		return nil, fmt.Errorf("device inventory %s: no devices defined", path)
	}

	byName := make(map[string]int, len(file.Devices))
	for i, d := range file.Devices {
		if d.Name == "" {
			return nil, fmt.Errorf("device inventory %s: device %d: name is required", path, i)
		}
		if d.Type == "" {
			return nil, fmt.Errorf("device inventory %s: device %q: device_type is required", path, d.Name)
		}
		if d.IPAddr == "" {
			return nil, fmt.Errorf("device inventory %s: device %q: ip_addr is required", path, d.Name)
		}
		if _, exists := byName[d.Name]; exists {
			return nil, fmt.Errorf("device inventory %s: duplicate device name %q", path, d.Name)
		}
		byName[d.Name] = i
	}

	devices := make([]Descriptor, len(file.Devices))
	copy(devices, file.Devices)

	return &Registry{devices: devices, byName: byName}, nil
}

// All returns the devices in declaration order. The returned slice is
// a copy; callers may not mutate the registry.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.devices))
	copy(out, r.devices)
	return out
}

// Get returns the device with the given name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return r.devices[i], true
}

// Count returns the number of configured devices.
func (r *Registry) Count() int {
	return len(r.devices)
}
