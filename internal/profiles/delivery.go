package profiles

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/rm-hull/hideaway/internal/mobileconfig"
	"github.com/rm-hull/hideaway/internal/nanomdm"
)

// Enqueuer is the part of the nanomdm client delivery needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, cmd *nanomdm.Command, ids ...string) (*nanomdm.APIResult, error)
}

// Pusher is implemented by clients that can wake devices without queueing
// a command.
type Pusher interface {
	Push(ctx context.Context, ids ...string) (*nanomdm.APIResult, error)
}

var ErrOffline = errors.New("no nanomdm client configured")

// Receipt records what a delivery did: either the file written (offline) or
// the command queued on nanomdm.
type Receipt struct {
	Identifier  string             `json:"identifier"`
	Path        string             `json:"path,omitempty"`
	CommandUUID string             `json:"command_uuid,omitempty"`
	RequestType string             `json:"request_type,omitempty"`
	Devices     []string           `json:"devices,omitempty"`
	Result      *nanomdm.APIResult `json:"result,omitempty"`
}

func (r *Receipt) Offline() bool {
	return r.Path != ""
}

// Delivery gets profiles onto devices. Without a nanomdm client it runs
// offline and writes each profile to outputDir for manual installation.
type Delivery struct {
	composer  *Composer
	client    Enqueuer
	outputDir string
	logger    *slog.Logger
}

func NewDelivery(composer *Composer, client Enqueuer, outputDir string, logger *slog.Logger) *Delivery {
	if outputDir == "" {
		outputDir = "."
	}
	return &Delivery{
		composer:  composer,
		client:    client,
		outputDir: outputDir,
		logger:    logger.With(slog.String("source", "delivery")),
	}
}

func (d *Delivery) Composer() *Composer {
	return d.composer
}

func (d *Delivery) writeFile(name string, profile *mobileconfig.Profile) (*Receipt, error) {
	path, err := mobileconfig.WriteFile(filepath.Join(d.outputDir, name), profile)
	if err != nil {
		return nil, err
	}
	data, err := mobileconfig.EncodeXML(profile)
	if err != nil {
		return nil, err
	}
	d.logger.Info("Profile saved, transfer it to the device and install it manually",
		"path", path,
		"identifier", profile.PayloadIdentifier,
		"size", humanize.Bytes(uint64(len(data))))
	return &Receipt{Identifier: profile.PayloadIdentifier, Path: path}, nil
}

func (d *Delivery) enqueue(ctx context.Context, identifier string, cmd *nanomdm.Command, devices []string) (*Receipt, error) {
	result, err := d.client.Enqueue(ctx, cmd, devices...)
	if err != nil {
		if identifier == "" {
			return nil, errors.Wrapf(err, "failed to send %s", cmd.Command.RequestType)
		}
		return nil, errors.Wrapf(err, "failed to deliver %s", identifier)
	}
	for device, status := range result.Status {
		if status.PushError != "" || status.CommandError != "" {
			d.logger.Warn("Device did not accept command",
				"device", device,
				"push_error", status.PushError,
				"command_error", status.CommandError)
		}
	}
	return &Receipt{
		Identifier:  identifier,
		CommandUUID: cmd.CommandUUID,
		RequestType: cmd.Command.RequestType,
		Devices:     devices,
		Result:      result,
	}, nil
}

// Install validates profile and sends it as an InstallProfile command.
func (d *Delivery) Install(ctx context.Context, profile *mobileconfig.Profile, devices ...string) (*Receipt, error) {
	report, err := d.composer.Validate(profile)
	if err != nil {
		return nil, err
	}
	if !report.IsValid {
		return nil, errors.Newf("refusing to deliver invalid profile %s: %v", profile.PayloadIdentifier, report.Issues)
	}

	if d.client == nil || len(devices) == 0 {
		return d.writeFile(mobileconfig.NormalizeName(profile.PayloadDisplayName), profile)
	}

	cmd, err := nanomdm.NewInstallProfileCommand(profile)
	if err != nil {
		return nil, err
	}
	return d.enqueue(ctx, profile.PayloadIdentifier, cmd, devices)
}

// Remove undoes a block profile. Online it queues RemoveProfile for the
// identifier; offline it writes the removal profile instead.
func (d *Delivery) Remove(ctx context.Context, identifier string, devices ...string) (*Receipt, error) {
	if d.client == nil || len(devices) == 0 {
		profile, err := d.composer.Unblock()
		if err != nil {
			return nil, err
		}
		return d.writeFile(RemovalFileName, profile)
	}

	cmd, err := nanomdm.NewRemoveProfileCommand(identifier)
	if err != nil {
		return nil, err
	}
	return d.enqueue(ctx, identifier, cmd, devices)
}

// Ping sends an APNs push to each device, which is how a device's
// connection to the MDM server is checked.
func (d *Delivery) Ping(ctx context.Context, devices ...string) (*nanomdm.APIResult, error) {
	pusher, ok := d.client.(Pusher)
	if !ok {
		return nil, ErrOffline
	}
	if len(devices) == 0 {
		return nil, errors.New("ping requires at least one device")
	}

	result, err := pusher.Push(ctx, devices...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to push")
	}
	for device, status := range result.Status {
		if status.PushError != "" {
			d.logger.Warn("Push failed", "device", device, "push_error", status.PushError)
		}
	}
	return result, nil
}

// ListProfiles queues a ProfileList command; devices report their installed
// profiles to the MDM server when they next check in.
func (d *Delivery) ListProfiles(ctx context.Context, devices ...string) (*Receipt, error) {
	if d.client == nil {
		return nil, ErrOffline
	}
	if len(devices) == 0 {
		return nil, errors.New("listing profiles requires at least one device")
	}
	return d.enqueue(ctx, "", nanomdm.NewProfileListCommand(), devices)
}
