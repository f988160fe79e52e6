// Package devicegen fabricates synthetic mobile-device identities (C1).
package devicegen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	mathrand "math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/mwzzzh/devicegen/internal/core/domain"
)

// hardwareProfile is one plausible (model, brand, manufacturer, OS,
// resolution, dpi) tuple. Drawing whole tuples, rather than mixing
// fields independently, keeps fabricated devices internally consistent
// (a Pixel never reports a Samsung resolution).
type hardwareProfile struct {
	model, brand, manufacturer string
	osAPI                      int
	osVersion                  string
	resolution, resolutionV2   string
	dpi                        int
	ramGB                      int
	screenWidthDP              int
	screenHeightDP             int
}

var hardwareProfiles = []hardwareProfile{
	{"Pixel 7", "google", "Google", 33, "13", "1080x2400", "2400x1080", 420, 8, 412, 915},
	{"Pixel 6a", "google", "Google", 33, "13", "1080x2400", "2400x1080", 420, 6, 412, 915},
	{"SM-G991B", "samsung", "Samsung", 31, "12", "1080x2340", "2340x1080", 421, 8, 360, 780},
	{"SM-A536B", "samsung", "Samsung", 32, "12", "1080x2400", "2400x1080", 420, 6, 412, 915},
	{"Redmi Note 11", "xiaomi", "Xiaomi", 30, "11", "1080x2400", "2400x1080", 395, 6, 409, 908},
	{"CPH2239", "oneplus", "OnePlus", 31, "12", "1080x2412", "2412x1080", 409, 8, 412, 919},
	{"Moto G Power", "motorola", "Motorola", 30, "11", "720x1600", "1600x720", 270, 4, 360, 800},
	{"ASUS_I006D", "asus", "Asus", 29, "10", "1080x2340", "2340x1080", 387, 6, 412, 892},
}

var roms = []struct{ rom, version string }{
	{"google/panther/panther", "13/TQ3A.230805.001"},
	{"samsung/r9s/r9s", "12/SP1A.210812.016"},
	{"xiaomi/spes/spes", "11/RKQ1.201105.002"},
	{"OnePlus/OP515BL1/OP515BL1", "12/SKQ1.211006.001"},
}

var carrierRegions = []struct {
	region, language, tzName string
	tzOffsetSeconds          int
}{
	{"US", "en", "America/New_York", -18000},
	{"US", "en", "America/Los_Angeles", -28800},
	{"GB", "en", "Europe/London", 0},
	{"DE", "de", "Europe/Berlin", 3600},
}

const (
	appPackage   = "com.zhiliaoapp.musically"
	appVersion   = "31.2.3"
	appVersionCd = "310203"
	sdkVersion   = "2.21.1-ml"
	sdkFlavor    = "i18nInner"
)

// Fabricator implements ports.Fabricator. It is stateless: every call
// draws fresh randomness and no two calls share mutable state, so a
// single Fabricator is safe to call concurrently from many worker-pool
// goroutines.
type Fabricator struct{}

// New returns a stateless Fabricator.
func New() *Fabricator { return &Fabricator{} }

// Fabricate produces one Device Record with randomized, internally
// consistent identifiers. The only failure mode is exhausting the
// system's entropy source, which is treated as fatal.
func (f *Fabricator) Fabricate() (domain.Device, error) {
	cdid := uuid.NewString()
	openudid, err := randomHex(16)
	if err != nil {
		return domain.Device{}, fmt.Errorf("fabricate device: %w", err)
	}
	clientudid := uuid.NewString()
	gaid := uuid.NewString()

	hw := hardwareProfiles[mathrand.IntN(len(hardwareProfiles))]
	rom := roms[mathrand.IntN(len(roms))]
	locale := carrierRegions[mathrand.IntN(len(carrierRegions))]

	now := time.Now()
	firstInstall := now.Add(-time.Duration(mathrand.IntN(30*24)) * time.Hour).UnixMilli()
	lastUpdate := now.Add(-time.Duration(mathrand.IntN(7*24)) * time.Hour).UnixMilli()

	d := domain.Device{
		CDID:       cdid,
		OpenUDID:   openudid,
		ClientUDID: clientudid,

		DeviceType:         hw.model,
		DeviceBrand:        hw.brand,
		DeviceManufacturer: hw.manufacturer,
		OSAPI:              hw.osAPI,
		OSVersion:          hw.osVersion,
		Resolution:         hw.resolution,
		ResolutionV2:       hw.resolutionV2,
		DPI:                hw.dpi,
		RAMSize:            int64(hw.ramGB) * 1024 * 1024 * 1024,
		ROM:                rom.rom,
		ROMVersion:         rom.version,
		ScreenWidthDP:      hw.screenWidthDP,
		ScreenHeightDP:     hw.screenHeightDP,
		GoogleAID:          gaid,
		ReleaseBuild:       "user",
		UA:                 fmt.Sprintf("com.zhiliaoapp.musically/%s (Linux; U; Android %s; en_US; %s; Build/%s)", appVersionCd, hw.osVersion, hw.model, rom.version),
		WebUA:              "Mozilla/5.0 (Linux; Android " + hw.osVersion + ")",

		Package:             appPackage,
		VersionName:         appVersion,
		VersionCode:         appVersionCd,
		UpdateVersionCode:   appVersionCd,
		SDKVersion:          sdkVersion,
		SDKVersionCode:      "220101",
		SDKTargetVersion:    "29",
		SDKFlavor:           sdkFlavor,
		ApkFirstInstallTime: firstInstall,
		ApkLastUpdateTime:   lastUpdate,

		Region:         locale.region,
		Language:       locale.language,
		TimezoneName:   locale.tzName,
		TimezoneOffset: locale.tzOffsetSeconds,
	}

	return d.WithDeviceUID(cdid), nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	for i := range buf {
		v, err := rand.Int(rand.Reader, big.NewInt(256))
		if err != nil {
			return "", err
		}
		buf[i] = byte(v.Int64())
	}
	return hex.EncodeToString(buf), nil
}

// FabricateBatch draws n devices and deduplicates on DeviceUID. It is
// the caller's responsibility (not the stateless Fabricator's) to
// guarantee batch-level uniqueness.
func FabricateBatch(f *Fabricator, n int) ([]domain.Device, error) {
	seen := make(map[string]struct{}, n)
	out := make([]domain.Device, 0, n)
	for len(out) < n {
		d, err := f.Fabricate()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[d.DeviceUID]; dup {
			continue
		}
		seen[d.DeviceUID] = struct{}{}
		out = append(out, d)
	}
	return out, nil
}
