package registration

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/mwzzzh/devicegen/internal/core/domain"
	"github.com/mwzzzh/devicegen/internal/core/services/signing"
)

const alertCheckSuccessBody = `{"message":"success"}`

// alertCheck runs Stage 2: it activates the device_id/install_id pair
// issued by Stage 1. Grounded on register_logic.py's alert_check; the
// response is not parsed as JSON, its body is compared byte-for-byte
// against the literal success string the real client checks for.
func (h *Handshake) alertCheck(ctx context.Context, client *http.Client, d domain.Device) error {
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
	url := h.endpoints.AlertCheckURL + "?" + queryString

	var stub, khronos, argus, ladon, gorgon string
	if err := h.offload(func() error {
		signCount := int64(20 + rand.Intn(21))
		stub, khronos, argus, ladon, gorgon = h.signer.Sign(d.DeviceID, stime, signCount, queryString, "")
		return nil
	}); err != nil {
		return &domain.TransientError{Stage: "alert_check", Err: err}
	}

	headers := map[string]string{
		"accept-encoding":            "gzip",
		"x-tt-app-init-region":       fmt.Sprintf("carrierregion=;mccmnc=;sysregion=%s;appregion=%s", d.Region, d.Region),
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
		"x-ss-stub":                  stub,
		"Host":                       "log-boot.tiktokv.com",
	}

	respBody, err := doRequest(ctx, client, http.MethodGet, url, headers, nil)
	if err != nil {
		return &domain.TransientError{Stage: "alert_check", Err: err}
	}
	if string(respBody) != alertCheckSuccessBody {
		return &domain.StageFailedError{Stage: "alert_check", Err: fmt.Errorf("unexpected body %q", respBody)}
	}
	return nil
}
