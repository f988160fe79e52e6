// Package registration implements the three-stage remote handshake
// (register -> activation-check -> signature exchange) that turns a
// fabricated Device into a ProvisionedDevice (C4). Grounded on
// register_logic.py's run_registration_flow: each stage captures its own
// ts/rticket pair, stages 1 and 2 each generate their own req_id (the
// sign stage sends none), and a failure at any stage
// aborts the attempt without touching the stages after it.
package registration

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mwzzzh/devicegen/internal/core/domain"
	"github.com/mwzzzh/devicegen/internal/core/ports"
	"github.com/mwzzzh/devicegen/internal/core/services/cpupool"
)

var tracer = otel.Tracer("devicegen/registration")

// Handshake implements ports.Registrar over the three stage functions
// in this package.
type Handshake struct {
	endpoints Endpoints
	signer    ports.SignatureSigner
	cpu       *cpupool.Pool
}

// NewHandshake builds a Handshake against endpoints, signing every
// request with signer. CPU-bound work within each stage (signature
// computation, keypair generation, response parsing) runs on cpu
// rather than the calling goroutine, which also drives the stage's
// blocking HTTP call.
func NewHandshake(endpoints Endpoints, signer ports.SignatureSigner, cpu *cpupool.Pool) *Handshake {
	return &Handshake{endpoints: endpoints, signer: signer, cpu: cpu}
}

var _ ports.Registrar = (*Handshake)(nil)

// offload runs fn on h.cpu when one is configured, keeping CPU-bound
// work off the goroutine driving the stage's blocking HTTP call. A nil
// pool (e.g. a handshake built directly in a test) runs fn inline.
func (h *Handshake) offload(fn func() error) error {
	if h.cpu == nil {
		return fn()
	}
	return h.cpu.Do(fn)
}

// Register drives device through all three stages using session's
// *http.Client, which carries the cookie jar between stages. taskID is
// used only for span/log correlation.
func (h *Handshake) Register(ctx context.Context, session ports.SessionHolder, device domain.Device, taskID int) (domain.ProvisionedDevice, error) {
	ctx, span := tracer.Start(ctx, "registration.Handshake.Register")
	defer span.End()
	span.SetAttributes(attribute.Int("task_id", taskID), attribute.String("device.cdid", device.CDID))

	client := session.Client()
	session.Use()

	deviceID, installID, err := h.stageRegister(ctx, client, device)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.ProvisionedDevice{}, err
	}
	device.DeviceID = deviceID
	device.InstallID = installID

	if err := h.stageAlertCheck(ctx, client, device); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.ProvisionedDevice{}, err
	}

	guard, pubKey, privKey, err := h.stageSign(ctx, client, device)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.ProvisionedDevice{}, err
	}

	return domain.ProvisionedDevice{
		Device:                 device,
		DeviceGuardData0:       guard,
		TTTicketGuardPublicKey: pubKey,
		PrivKey:                privKey,
	}, nil
}

func (h *Handshake) stageRegister(ctx context.Context, client *http.Client, device domain.Device) (string, string, error) {
	ctx, span := tracer.Start(ctx, "registration.stage.register")
	defer span.End()
	deviceID, installID, err := h.register(ctx, client, device)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return deviceID, installID, err
}

func (h *Handshake) stageAlertCheck(ctx context.Context, client *http.Client, device domain.Device) error {
	ctx, span := tracer.Start(ctx, "registration.stage.alert_check")
	defer span.End()
	err := h.alertCheck(ctx, client, device)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (h *Handshake) stageSign(ctx context.Context, client *http.Client, device domain.Device) (domain.DeviceGuardData, string, string, error) {
	ctx, span := tracer.Start(ctx, "registration.stage.sign")
	defer span.End()
	guard, pubKey, privKey, err := h.sign(ctx, client, device)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return guard, pubKey, privKey, err
}
