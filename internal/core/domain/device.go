package domain

import (
	"encoding/json"
)

// Device is a synthetic mobile-device identity. It mirrors the fields a
// real device would report during app-log registration: stable
// identifiers, hardware descriptors, app descriptors and locale
// descriptors. DeviceUID uniquely identifies a record across the system
// before registration; DeviceID becomes the primary key afterward.
type Device struct {
	// Stable-identifier triplet.
	CDID       string `json:"cdid"`
	OpenUDID   string `json:"openudid"`
	ClientUDID string `json:"clientudid"`
	DeviceUID  string `json:"device_uid"`

	// Hardware descriptors.
	DeviceType         string `json:"device_type"`
	DeviceBrand        string `json:"device_brand"`
	DeviceManufacturer string `json:"device_manufacturer"`
	OSAPI              int    `json:"os_api"`
	OSVersion          string `json:"os_version"`
	Resolution         string `json:"resolution"`    // "2209x1080"
	ResolutionV2       string `json:"resolution_v2"` // "1080x2209"
	DPI                int    `json:"dpi"`
	RAMSize            int64  `json:"ram_size"`
	ROM                string `json:"rom"`
	ROMVersion         string `json:"rom_version"`
	ScreenWidthDP      int    `json:"screen_width_dp"`
	ScreenHeightDP     int    `json:"screen_height_dp"`
	GoogleAID          string `json:"google_aid"`
	ReleaseBuild       string `json:"release_build"`
	UA                 string `json:"ua"`
	WebUA              string `json:"web_ua"`

	// App descriptors.
	Package              string `json:"package"`
	VersionName          string `json:"version_name"`
	VersionCode          string `json:"version_code"`
	UpdateVersionCode    string `json:"update_version_code"`
	SDKVersion           string `json:"sdk_version"`
	SDKVersionCode       string `json:"sdk_version_code"`
	SDKTargetVersion     string `json:"sdk_target_version"`
	SDKFlavor            string `json:"sdk_flavor"`
	ApkFirstInstallTime  int64  `json:"apk_first_install_time"`
	ApkLastUpdateTime    int64  `json:"apk_last_update_time"`

	// Locale descriptors.
	Region         string `json:"region"`
	Language       string `json:"language"`
	TimezoneName   string `json:"timezone_name"`
	TimezoneOffset int    `json:"timezone_offset"` // seconds

	// Authoritative identifiers, attached after successful registration.
	DeviceID  string `json:"device_id,omitempty"`
	InstallID string `json:"install_id,omitempty"`
}

// WithDeviceUID returns a copy of d with DeviceUID populated according to
// the fallback chain: CDID, then ClientUDID, then a caller-supplied
// freshly minted identifier (used only if both are empty).
func (d Device) WithDeviceUID(fallback string) Device {
	if d.DeviceUID != "" {
		return d
	}
	switch {
	case d.CDID != "":
		d.DeviceUID = d.CDID
	case d.ClientUDID != "":
		d.DeviceUID = d.ClientUDID
	default:
		d.DeviceUID = fallback
	}
	return d
}

// CanonicalJSON serializes the device with Go's default struct-field
// ordering and the compact ",", ":" separators used throughout the wire
// protocol. Field ordering is structural (driven by the struct
// definition above), so two calls for the same value always produce the
// same bytes -- this is what keeps the signature adapter's inputs
// reproducible (see signing.HeaderSigner).
func (d Device) CanonicalJSON() ([]byte, error) {
	return json.Marshal(d)
}

// Keypair is the ephemeral asymmetric pair generated once per
// registration attempt at Stage 3 (signature exchange). PublicKeyB64 is
// transmitted in the tt-ticket-guard-public-key header; PrivateKeyHex is
// stored alongside the provisioned device.
type Keypair struct {
	PublicKeyB64  string
	PrivateKeyHex string
}

// DeviceGuardData is the decoded tt-device-guard-server-data payload
// returned by the sign endpoint at Stage 3.
type DeviceGuardData struct {
	DeviceToken string `json:"device_token"`
	DTokenSign  string `json:"dtoken_sign"`
}

// ProvisionedDevice is a Device augmented with the artifacts issued by a
// successful three-stage handshake. It is created once by the
// registration handshake and never mutated by the core afterward.
type ProvisionedDevice struct {
	Device

	DeviceGuardData0       DeviceGuardData `json:"device_guard_data0"`
	TTTicketGuardPublicKey string          `json:"tt_ticket_guard_public_key"`
	PrivKey                string          `json:"priv_key"`
}

// WriteBatchItem is one row awaiting flush through the write pipeline.
// ShardKey (the task id) selects the file-backup bucket only; the DB
// shard is CRC32(device_id) mod N, or the forced shard in fill-loop mode.
type WriteBatchItem struct {
	ShardKey int
	Device   ProvisionedDevice
}
