package registration

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	mrand "math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/mwzzzh/devicegen/internal/core/domain"
	"github.com/mwzzzh/devicegen/internal/core/services/signing"
)

// deviceProperties mirrors the fixed-and-hashed fingerprint blob the
// sign endpoint expects. Most fields are opaque constants observed in
// the reference capture; only device_model, device_manufacturer and
// resolution are derived per-device (SHA-256 of the field value).
type deviceProperties struct {
	DeviceModel        string `json:"device_model"`
	DeviceManufacturer string `json:"device_manufacturer"`
	DiskSize           string `json:"disk_size"`
	MemorySize         string `json:"memory_size"`
	Resolution         string `json:"resolution"`
	ReTime             string `json:"re_time"`
	IndSS18            string `json:"indss18"`
	IndC15             string `json:"indc15"`
	IndN5              string `json:"indn5"`
	IndMC14            string `json:"indmc14"`
	IndA0              string `json:"inda0"`
	IndAl2             string `json:"indal2"`
	IndM10             string `json:"indm10"`
	IndSP3             string `json:"indsp3"`
	IndSD8             string `json:"indsd8"`
	BL                 string `json:"bl"`
	CMF                string `json:"cmf"`
	BC                 string `json:"bc"`
	STZ                string `json:"stz"`
	SL                 string `json:"sl"`
}

type signRequest struct {
	DeviceID          string           `json:"device_id"`
	InstallID         string           `json:"install_id"`
	AID               int              `json:"aid"`
	AppVersion        string           `json:"app_version"`
	Model             string           `json:"model"`
	OS                string           `json:"os"`
	OpenUDID          string           `json:"openudid"`
	GoogleAID         string           `json:"google_aid"`
	PropertiesVersion string           `json:"properties_version"`
	DeviceProperties  deviceProperties `json:"device_properties"`
}

type signResponse struct {
	DeviceGuardServerData string `json:"tt-device-guard-server-data"`
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// generateKeypair mints the ephemeral Ed25519 pair transmitted in
// tt-ticket-guard-public-key. The real client's key-generation routine
// is an opaque collaborator; Ed25519 is the closest stdlib primitive
// and no example dependency offers a narrower fit, so it is used
// directly rather than through a third-party wrapper.
func generateKeypair() (domain.Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return domain.Keypair{}, fmt.Errorf("generate keypair: %w", err)
	}
	return domain.Keypair{
		PublicKeyB64:  signing.PublicKeyBase64(pub),
		PrivateKeyHex: hex.EncodeToString(priv),
	}, nil
}

// sign runs Stage 3: it exchanges the activated device for a signed
// device-guard token, generating the ephemeral keypair advertised in
// tt-ticket-guard-public-key along the way. Grounded on
// register_logic.py's make_ds_sign.
func (h *Handshake) sign(ctx context.Context, client *http.Client, d domain.Device) (domain.DeviceGuardData, string, string, error) {
	now := time.Now()
	stime := now.Unix()
	utime := now.UnixMilli()
	lastInstall := d.ApkLastUpdateTime / 1000

	params := []signing.QueryParam{
		{Key: "from", Value: "normal"},
		{Key: "from_error", Value: ""},
		{Key: "device_platform", Value: "android"},
		{Key: "os", Value: "android"},
		{Key: "ssmix", Value: "a"},
		{Key: "_rticket", Value: fmt.Sprintf("%d", utime)},
		{Key: "cdid", Value: d.CDID},
		{Key: "channel", Value: "googleplay"},
		{Key: "aid", Value: "1233"},
		{Key: "app_name", Value: "musical_ly"},
		{Key: "version_code", Value: d.VersionCode},
		{Key: "version_name", Value: d.VersionName},
		{Key: "manifest_version_code", Value: d.UpdateVersionCode},
		{Key: "update_version_code", Value: d.UpdateVersionCode},
		{Key: "ab_version", Value: d.VersionName},
		{Key: "resolution", Value: d.Resolution},
		{Key: "dpi", Value: fmt.Sprintf("%d", d.DPI)},
		{Key: "device_type", Value: d.DeviceType},
		{Key: "device_brand", Value: d.DeviceBrand},
		{Key: "language", Value: d.Language},
		{Key: "os_api", Value: fmt.Sprintf("%d", d.OSAPI)},
		{Key: "os_version", Value: d.OSVersion},
		{Key: "ac", Value: "wifi"},
		{Key: "is_pad", Value: "0"},
		{Key: "app_type", Value: "normal"},
		{Key: "sys_region", Value: d.Region},
		{Key: "last_install_time", Value: fmt.Sprintf("%d", lastInstall)},
		{Key: "mcc_mnc", Value: "310004"},
		{Key: "timezone_name", Value: d.TimezoneName},
		{Key: "carrier_region_v2", Value: "310"},
		{Key: "app_language", Value: d.Language},
		{Key: "carrier_region", Value: d.Region},
		{Key: "ac2", Value: "wifi"},
		{Key: "uoo", Value: "0"},
		{Key: "op_region", Value: d.Region},
		{Key: "timezone_offset", Value: fmt.Sprintf("%d", d.TimezoneOffset)},
		{Key: "build_number", Value: d.VersionName},
		{Key: "host_abi", Value: "arm64-v8a"},
		{Key: "locale", Value: d.Language},
		{Key: "region", Value: d.Region},
		{Key: "ts", Value: fmt.Sprintf("%d", stime)},
		{Key: "iid", Value: d.InstallID},
		{Key: "device_id", Value: d.DeviceID},
		{Key: "openudid", Value: d.OpenUDID},
	}
	queryString := signing.BuildQueryString(params)
	url := h.endpoints.SignURL + "?" + queryString

	reqBody := signRequest{
		DeviceID:          d.DeviceID,
		InstallID:         d.InstallID,
		AID:               1233,
		AppVersion:        d.VersionName,
		Model:             d.DeviceType,
		OS:                "Android",
		OpenUDID:          d.OpenUDID,
		GoogleAID:         d.GoogleAID,
		PropertiesVersion: "android-1.0",
		DeviceProperties: deviceProperties{
			DeviceModel:        sha256Hex(d.DeviceType),
			DeviceManufacturer: sha256Hex(d.DeviceManufacturer),
			DiskSize:           "ea489ffb302814b62320c02536989a3962de820f5a481eb5bac1086697d9aa3c",
			MemorySize:         "291cf975c42a1e788fdc454e3c7330d641db5f9f7ba06e37f7f388b3448bc374",
			Resolution:         sha256Hex(d.Resolution),
			ReTime:             "0af7de3d5239bb5542f0653e57c7c8b9",
			IndSS18:            "8725063fe010181646c25d1f993e1589",
			IndC15:             "7874453cef13dddd56fcb3c7e8e99c28",
			IndN5:              "a9ca935c4885bbc1da2be687f153354c",
			IndMC14:            "e678d34e71a6943f1cab0bfa3c7a226b",
			IndA0:              "d0eac42291b9a88173d9914972a65d8b",
			IndAl2:             "d7baecabd462bc9f960eaab4c81a55c5",
			IndM10:             "446ae4837d88b3b3988d57b9747e11cd",
			IndSP3:             "9861cb1513b66e9aaeb66ef048bfdd18",
			IndSD8:             "a15ec37e1115dea871970a39ec0769c4",
			BL:                 "a3d41c6f3e8c1892d2cc97469805b1f0",
			CMF:                "5494690cb9b316eb618265ea11dc5146",
			BC:                 "1e2b66f4392214037884408109a383df",
			STZ:                "e6f9d2069f89b53a8e6f2c65929d2e50",
			SL:                 "2389ca43e5adab9de01d2dda7633ac39",
		},
	}
	var bodyJSON []byte
	var stub, khronos, argus, ladon, gorgon string
	var keypair domain.Keypair
	err := h.offload(func() error {
		var marshalErr error
		bodyJSON, marshalErr = json.Marshal(reqBody)
		if marshalErr != nil {
			return fmt.Errorf("marshal sign body: %w", marshalErr)
		}
		bodyHex := fmt.Sprintf("%x", bodyJSON)
		signCount := int64(20 + mrand.Intn(21))
		stub, khronos, argus, ladon, gorgon = h.signer.Sign(d.DeviceID, stime, signCount, queryString, bodyHex)

		var keypairErr error
		keypair, keypairErr = generateKeypair()
		if keypairErr != nil {
			return fmt.Errorf("stage3 keypair: %w", keypairErr)
		}
		return nil
	})
	if err != nil {
		return domain.DeviceGuardData{}, "", "", err
	}

	cookie := strings.Join([]string{
		"store-idc=useast5",
		"store-country-code=us",
		"store-country-code-src=did",
		fmt.Sprintf("install_id=%s", d.InstallID),
	}, "; ")

	headers := map[string]string{
		"cookie":                              cookie,
		"x-tt-request-tag":                    "t=0;n=1",
		"tt-ticket-guard-public-key":          keypair.PublicKeyB64,
		"sdk-version":                         "2",
		"x-tt-dm-status":                      "login=0;ct=0;rt=1",
		"x-ss-req-ticket":                     fmt.Sprintf("%d", utime),
		"tt-device-guard-iteration-version":   "1",
		"passport-sdk-version":                "-1",
		"x-vc-bdturing-sdk-version":           "2.3.17.i18n",
		"content-type":                        "application/json; charset=utf-8",
		"x-ss-stub":                           stub,
		"x-khronos":                           khronos,
		"x-argus":                             argus,
		"x-ladon":                             ladon,
		"x-gorgon":                            gorgon,
		"rpc-persist-pyxis-policy-state-law-is-ca": "1",
		"rpc-persist-pyxis-policy-v-tnc":       "1",
		"x-tt-ttnet-origin-host":              "log16-normal-useast8.tiktokv.us",
		"x-ss-dp":                             "1233",
		"user-agent":                          d.UA,
		"accept-encoding":                     "gzip, deflate",
		"Host":                                "aggr16-normal.tiktokv.us",
	}

	respBody, err := doRequest(ctx, client, http.MethodPost, url, headers, bodyJSON)
	if err != nil {
		return domain.DeviceGuardData{}, "", "", &domain.TransientError{Stage: "sign", Err: err}
	}

	var guard domain.DeviceGuardData
	err = h.offload(func() error {
		var parsed signResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		decoded, err := base64.StdEncoding.DecodeString(parsed.DeviceGuardServerData)
		if err != nil {
			return fmt.Errorf("decode device guard data: %w", err)
		}
		if err := json.Unmarshal(decoded, &guard); err != nil {
			return fmt.Errorf("parse device guard data: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.DeviceGuardData{}, "", "", &domain.StageFailedError{Stage: "sign", Err: err}
	}

	return guard, keypair.PublicKeyB64, keypair.PrivateKeyHex, nil
}
