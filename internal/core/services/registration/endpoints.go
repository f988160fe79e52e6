// Package registration implements the three-stage remote handshake
// (register -> activation-check -> signature exchange) that turns a
// fabricated Device into a ProvisionedDevice (C4).
package registration

// Endpoints holds the three wire URLs the handshake talks to. They are
// configuration, not constants, so tests can point the handshake at a
// stubbed HTTP server.
type Endpoints struct {
	RegisterURL   string
	AlertCheckURL string
	SignURL       string
}

// DefaultEndpoints mirrors the hosts observed in the reference capture.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		RegisterURL:   "https://log-boot.tiktokv.com/service/2/device_register/",
		AlertCheckURL: "https://log-boot.tiktokv.com/service/2/app_alert_check/",
		SignURL:       "https://aggr16-normal.tiktokv.us/service/2/dsign/",
	}
}
