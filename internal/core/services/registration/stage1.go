package registration

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/mwzzzh/devicegen/internal/core/domain"
	"github.com/mwzzzh/devicegen/internal/core/services/signing"
)

// registerHeader is the "header" block of the device_register body,
// field-for-field matched against the reference capture.
type registerHeader struct {
	OS                 string `json:"os"`
	OSVersion          string `json:"os_version"`
	OSAPI              int    `json:"os_api"`
	DeviceModel        string `json:"device_model"`
	DeviceBrand        string `json:"device_brand"`
	DeviceManufacturer string `json:"device_manufacturer"`
	CPUABI             string `json:"cpu_abi"`
	DensityDPI         int    `json:"density_dpi"`
	DisplayDensity     string `json:"display_density"`
	Resolution         string `json:"resolution"`
	DisplayDensityV2   string `json:"display_density_v2"`
	ResolutionV2       string `json:"resolution_v2"`
	Access             string `json:"access"`
	ROM                string `json:"rom"`
	ROMVersion         string `json:"rom_version"`
	Language           string `json:"language"`
	Timezone           int    `json:"timezone"`
	Region             string `json:"region"`
	TZName             string `json:"tz_name"`
	TZOffset           int    `json:"tz_offset"`
	ClientUDID         string `json:"clientudid"`
	OpenUDID           string `json:"openudid"`
	Channel            string `json:"channel"`
	NotRequestSender   int    `json:"not_request_sender"`
	AID                int    `json:"aid"`
	ReleaseBuild       string `json:"release_build"`
	ABVersion          string `json:"ab_version"`
	GoogleAID          string `json:"google_aid"`
	GaidLimited        int    `json:"gaid_limited"`

	Custom registerCustom `json:"custom"`

	Package             string `json:"package"`
	AppVersion          string `json:"app_version"`
	AppVersionMinor     string `json:"app_version_minor"`
	VersionCode         int64  `json:"version_code"`
	UpdateVersionCode   int64  `json:"update_version_code"`
	ManifestVersionCode int64  `json:"manifest_version_code"`
	AppName             string `json:"app_name"`
	TweakedChannel      string `json:"tweaked_channel"`
	DisplayName         string `json:"display_name"`
	CDID                string `json:"cdid"`
	DevicePlatform      string `json:"device_platform"`
	SDKVersionCode      string `json:"sdk_version_code"`
	SDKTargetVersion    string `json:"sdk_target_version"`
	ReqID               string `json:"req_id"`
	SDKVersion          string `json:"sdk_version"`
	GuestMode           int    `json:"guest_mode"`
	SDKFlavor           string `json:"sdk_flavor"`
	ApkFirstInstallTime int64  `json:"apk_first_install_time"`
	IsSystemApp         int    `json:"is_system_app"`
}

type registerCustom struct {
	RAMSize              string `json:"ram_size"`
	DarkModeSettingValue int    `json:"dark_mode_setting_value"`
	IsFoldable           int    `json:"is_foldable"`
	ScreenHeightDP       int    `json:"screen_height_dp"`
	ApkLastUpdateTime    int64  `json:"apk_last_update_time"`
	FilterWarn           int    `json:"filter_warn"`
	PriorityRegion       string `json:"priority_region"`
	UserPeriod           int    `json:"user_period"`
	IsKidsMode           int    `json:"is_kids_mode"`
	WebUA                string `json:"web_ua"`
	ScreenWidthDP        int    `json:"screen_width_dp"`
	UserMode             int    `json:"user_mode"`
}

type registerBody struct {
	Header   registerHeader `json:"header"`
	MagicTag string         `json:"magic_tag"`
	GenTime  int64          `json:"_gen_time"`
}

type registerResponse struct {
	DeviceID  flexString `json:"device_id"`
	InstallID flexString `json:"install_id"`
}

// register runs Stage 1: it registers the fabricated device and returns
// the server-assigned device_id/install_id pair. Grounded on
// register_logic.py's make_did_iid.
func (h *Handshake) register(ctx context.Context, client *http.Client, d domain.Device) (deviceID, installID string, err error) {
	now := time.Now()
	stime := now.Unix()
	utime := now.UnixMilli()
	reqID := newReqID()
	lastInstall := d.ApkLastUpdateTime / 1000

	params := []signing.QueryParam{
		{Key: "rticket", Value: fmt.Sprintf("%d", utime)},
		{Key: "ab_version", Value: d.VersionName},
		{Key: "ac", Value: "wifi"},
		{Key: "ac2", Value: "wifi"},
		{Key: "aid", Value: "1233"},
		{Key: "app_language", Value: d.Language},
		{Key: "app_name", Value: "musical_ly"},
		{Key: "app_type", Value: "normal"},
		{Key: "build_number", Value: d.VersionName},
		{Key: "carrier_region", Value: d.Region},
		{Key: "carrier_region_v2", Value: "310"},
		{Key: "cdid", Value: d.CDID},
		{Key: "channel", Value: "googleplay"},
		{Key: "device_brand", Value: d.DeviceBrand},
		{Key: "device_platform", Value: "android"},
		{Key: "device_type", Value: d.DeviceType},
		{Key: "dpi", Value: fmt.Sprintf("%d", d.DPI)},
		{Key: "host_abi", Value: "arm64-v8a"},
		{Key: "is_pad", Value: "0"},
		{Key: "language", Value: d.Language},
		{Key: "last_install_time", Value: fmt.Sprintf("%d", lastInstall)},
		{Key: "locale", Value: d.Language},
		{Key: "manifest_version_code", Value: d.UpdateVersionCode},
		{Key: "mcc_mnc", Value: "310004"},
		{Key: "op_region", Value: d.Region},
		{Key: "openudid", Value: d.OpenUDID},
		{Key: "os", Value: "android"},
		{Key: "os_api", Value: fmt.Sprintf("%d", d.OSAPI)},
		{Key: "os_version", Value: d.OSVersion},
		{Key: "redirect_from_idc", Value: "maliva"},
		{Key: "region", Value: d.Region},
		{Key: "req_id", Value: reqID},
		{Key: "resolution", Value: d.Resolution},
		{Key: "ssmix", Value: "a"},
		{Key: "sys_region", Value: d.Region},
		{Key: "timezone_name", Value: d.TimezoneName},
		{Key: "timezone_offset", Value: fmt.Sprintf("%d", d.TimezoneOffset)},
		{Key: "ts", Value: fmt.Sprintf("%d", stime)},
		{Key: "uoo", Value: "0"},
		{Key: "update_version_code", Value: d.UpdateVersionCode},
		{Key: "version_code", Value: d.VersionCode},
		{Key: "version_name", Value: d.VersionName},
	}
	queryString := signing.BuildQueryString(params)
	url := h.endpoints.RegisterURL + "?" + queryString

	versionCode := parseInt64(d.VersionCode)
	updateVersionCode := parseInt64(d.UpdateVersionCode)

	body := registerBody{
		Header: registerHeader{
			OS:                 "Android",
			OSVersion:          d.OSVersion,
			OSAPI:              d.OSAPI,
			DeviceModel:        d.DeviceType,
			DeviceBrand:        d.DeviceBrand,
			DeviceManufacturer: d.DeviceManufacturer,
			CPUABI:             "arm64-v8a",
			DensityDPI:         d.DPI,
			DisplayDensity:     "mdpi",
			Resolution:         d.Resolution,
			DisplayDensityV2:   "xxhdpi",
			ResolutionV2:       d.ResolutionV2,
			Access:             "wifi",
			ROM:                d.ROM,
			ROMVersion:         d.ROMVersion,
			Language:           d.Language,
			Timezone:           d.TimezoneOffset / 3600,
			Region:             d.Region,
			TZName:             d.TimezoneName,
			TZOffset:           d.TimezoneOffset,
			ClientUDID:         d.ClientUDID,
			OpenUDID:           d.OpenUDID,
			Channel:            "googleplay",
			NotRequestSender:   1,
			AID:                1233,
			ReleaseBuild:       d.ReleaseBuild,
			ABVersion:          d.VersionName,
			GoogleAID:          d.GoogleAID,
			GaidLimited:        0,
			Custom: registerCustom{
				RAMSize:              fmt.Sprintf("%d", d.RAMSize),
				DarkModeSettingValue: 1,
				IsFoldable:           0,
				ScreenHeightDP:       d.ScreenHeightDP,
				ApkLastUpdateTime:    d.ApkLastUpdateTime,
				FilterWarn:           0,
				PriorityRegion:       d.Region,
				UserPeriod:           0,
				IsKidsMode:           0,
				WebUA:                d.WebUA,
				ScreenWidthDP:        d.ScreenWidthDP,
				UserMode:             1,
			},
			Package:             "com.zhiliaoapp.musically",
			AppVersion:          d.VersionName,
			AppVersionMinor:     "",
			VersionCode:         versionCode,
			UpdateVersionCode:   updateVersionCode,
			ManifestVersionCode: updateVersionCode,
			AppName:             "musical_ly",
			TweakedChannel:      "googleplay",
			DisplayName:         "TikTok",
			CDID:                d.CDID,
			DevicePlatform:      "android",
			SDKVersionCode:      d.SDKVersionCode,
			SDKTargetVersion:    d.SDKTargetVersion,
			ReqID:               reqID,
			SDKVersion:          d.SDKVersion,
			GuestMode:           0,
			SDKFlavor:           d.SDKFlavor,
			ApkFirstInstallTime: d.ApkFirstInstallTime,
			IsSystemApp:         0,
		},
		MagicTag: "ss_app_log",
		GenTime:  utime,
	}

	var bodyJSON []byte
	var stub, khronos, argus, ladon, gorgon string
	err = h.offload(func() error {
		var marshalErr error
		bodyJSON, marshalErr = json.Marshal(body)
		if marshalErr != nil {
			return marshalErr
		}
		bodyHex := fmt.Sprintf("%x", bodyJSON)
		signCount := int64(20 + rand.Intn(21))
		stub, khronos, argus, ladon, gorgon = h.signer.Sign("", stime, signCount, queryString, bodyHex)
		return nil
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal register body: %w", err)
	}

	headers := map[string]string{
		"Host":                       "log-boot.tiktokv.com",
		"x-ss-stub":                  stub,
		"x-tt-app-init-region":       fmt.Sprintf("carrierregion=;mccmnc=;sysregion=%s;appregion=%s", d.Region, d.Region),
		"x-tt-request-tag":           "t=0;n=1",
		"x-tt-dm-status":             "login=0;ct=0;rt=1",
		"x-ss-req-ticket":            fmt.Sprintf("%d", utime),
		"sdk-version":                "2",
		"passport-sdk-version":       "-1",
		"x-vc-bdturing-sdk-version":  "2.3.13.i18n",
		"user-agent":                 d.UA,
		"x-ladon":                    ladon,
		"x-khronos":                  khronos,
		"x-argus":                    argus,
		"x-gorgon":                   gorgon,
		"content-type":               "application/json; charset=utf-8",
		"accept-encoding":            "gzip",
	}

	respBody, err := doRequest(ctx, client, http.MethodPost, url, headers, bodyJSON)
	if err != nil {
		return "", "", &domain.TransientError{Stage: "register", Err: err}
	}

	var parsed registerResponse
	if err := h.offload(func() error { return json.Unmarshal(respBody, &parsed) }); err != nil {
		return "", "", &domain.StageFailedError{Stage: "register", Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.DeviceID == "" || parsed.DeviceID == "0" || parsed.InstallID == "" {
		return "", "", &domain.StageFailedError{Stage: "register", Err: fmt.Errorf("missing device_id/install_id in response")}
	}
	return string(parsed.DeviceID), string(parsed.InstallID), nil
}
