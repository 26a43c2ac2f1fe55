package device

import "strings"

// Descriptor identifies a single Tapo smart plug as declared in the
// device inventory file.
type Descriptor struct {
	// Name is the unique identifier used in backend queries and API paths.
	Name string `json:"name"`

	// Type is the hardware model (e.g. "P110"). The backend routes
	// requests by lowercased model name.
	Type string `json:"device_type"`

	// IPAddr is the plug's address on the local network. The backend
	// connects to it directly; we carry it for display and diagnostics.
	IPAddr string `json:"ip_addr"`
}

// RouteType returns the device type in the form the backend expects
// in its action URLs.
func (d Descriptor) RouteType() string {
	return strings.ToLower(d.Type)
}
