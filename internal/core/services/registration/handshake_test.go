package registration

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/mwzzzh/devicegen/internal/core/domain"
	"github.com/mwzzzh/devicegen/internal/core/services/cpupool"
	"github.com/mwzzzh/devicegen/internal/core/services/signing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSessionHolder is a minimal ports.SessionHolder backed by a plain
// *http.Client, so the handshake can be driven against an httptest
// server without the real httpsession.Pool.
type testSessionHolder struct {
	client *http.Client
	uses   int
}

func newTestSessionHolder() *testSessionHolder {
	jar, _ := cookiejar.New(nil)
	return &testSessionHolder{client: &http.Client{Jar: jar}}
}

func (h *testSessionHolder) Client() *http.Client { return h.client }
func (h *testSessionHolder) Use()                 { h.uses++ }

func testDevice() domain.Device {
	d := domain.Device{
		CDID:               "cdid-123",
		OpenUDID:           "openudid-abc",
		ClientUDID:         "clientudid-xyz",
		DeviceType:         "Pixel 7",
		DeviceBrand:        "google",
		DeviceManufacturer: "Google",
		OSAPI:              33,
		OSVersion:          "13",
		Resolution:         "1080x2400",
		ResolutionV2:       "2400x1080",
		DPI:                420,
		RAMSize:            8 * 1024 * 1024 * 1024,
		ROM:                "google/panther/panther",
		ROMVersion:         "13/TQ3A.230805.001",
		ScreenWidthDP:      412,
		ScreenHeightDP:     915,
		GoogleAID:          "gaid-1",
		ReleaseBuild:       "user",
		UA:                 "test-agent",
		WebUA:              "test-web-agent",
		Package:            "com.zhiliaoapp.musically",
		VersionName:        "31.2.3",
		VersionCode:        "310203",
		UpdateVersionCode:  "310203",
		SDKVersion:         "2.21.1-ml",
		SDKVersionCode:     "220101",
		SDKTargetVersion:   "29",
		SDKFlavor:          "i18nInner",
		ApkFirstInstallTime: 1700000000000,
		ApkLastUpdateTime:   1700500000000,
		Region:              "US",
		Language:            "en",
		TimezoneName:        "America/New_York",
		TimezoneOffset:      -18000,
	}
	return d.WithDeviceUID("cdid-123")
}

func newTestHandshake(t *testing.T, mux *http.ServeMux) (*Handshake, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(mux)
	signer, err := signing.NewHeaderSigner("test-secret")
	require.NoError(t, err)
	endpoints := Endpoints{
		RegisterURL:   srv.URL + "/service/2/device_register/",
		AlertCheckURL: srv.URL + "/service/2/app_alert_check/",
		SignURL:       srv.URL + "/service/2/dsign/",
	}
	return NewHandshake(endpoints, signer, cpupool.New(4)), srv
}

func TestHandshakeRegisterSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/service/2/device_register/", func(w http.ResponseWriter, r *http.Request) {
		var body registerBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode register body: %v", err)
		}
		if body.Header.CDID != "cdid-123" {
			t.Errorf("unexpected cdid in body: %q", body.Header.CDID)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"device_id":  "7500000000000000001",
			"install_id": "7500000000000000002",
		})
	})
	mux.HandleFunc("/service/2/app_alert_check/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, alertCheckSuccessBody)
	})
	mux.HandleFunc("/service/2/dsign/", func(w http.ResponseWriter, r *http.Request) {
		guard := `{"device_token":"tok-1","dtoken_sign":"sig-1"}`
		encoded := base64.StdEncoding.EncodeToString([]byte(guard))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"tt-device-guard-server-data": encoded,
		})
	})

	h, srv := newTestHandshake(t, mux)
	defer srv.Close()

	session := newTestSessionHolder()
	provisioned, err := h.Register(context.Background(), session, testDevice(), 1)
	require.NoError(t, err)
	assert.Equal(t, "7500000000000000001", provisioned.DeviceID)
	assert.Equal(t, "7500000000000000002", provisioned.InstallID)
	assert.Equal(t, "tok-1", provisioned.DeviceGuardData0.DeviceToken)
	assert.NotEmpty(t, provisioned.TTTicketGuardPublicKey, "expected a public key to be generated")
	assert.NotEmpty(t, provisioned.PrivKey, "expected a private key to be generated")
	assert.NotZero(t, session.uses, "expected session.Use() to be called")
}

func TestHandshakeRegisterStageFailsOnMissingIDs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/service/2/device_register/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{})
	})
	h, srv := newTestHandshake(t, mux)
	defer srv.Close()

	_, err := h.Register(context.Background(), newTestSessionHolder(), testDevice(), 1)
	require.Error(t, err)
	var stageErr *domain.StageFailedError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "register", stageErr.Stage)
}

func TestHandshakeAlertCheckFailsOnUnexpectedBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/service/2/device_register/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"device_id":  "1",
			"install_id": "2",
		})
	})
	mux.HandleFunc("/service/2/app_alert_check/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":"failed"}`)
	})
	h, srv := newTestHandshake(t, mux)
	defer srv.Close()

	_, err := h.Register(context.Background(), newTestSessionHolder(), testDevice(), 1)
	require.Error(t, err)
	var stageErr *domain.StageFailedError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "alert_check", stageErr.Stage)
}
