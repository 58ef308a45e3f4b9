package pmd

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/sirupsen/logrus"
)

// GATT is the subset of a connected peripheral the PMD handshake needs.
// Characteristics are addressed by normalized service and characteristic UUIDs.
type GATT interface {
	Read(ctx context.Context, service, char string) ([]byte, error)
	Write(ctx context.Context, service, char string, data []byte) error
	Subscribe(ctx context.Context, service, char string, handler func([]byte)) error
	Unsubscribe(ctx context.Context, service, char string) error
}

// Driver performs the PMD start and stop handshakes.
type Driver struct {
	gatt     GATT
	start    StartCommand
	logger   *logrus.Logger
	features Features
}

// NewDriver creates a Driver issuing the given start command.
func NewDriver(gatt GATT, start StartCommand, logger *logrus.Logger) *Driver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Driver{gatt: gatt, start: start, logger: logger}
}

// Features returns the feature read-out captured by the last Start.
func (d *Driver) Features() Features {
	return d.features
}

// Start reads the control point, subscribes to control point acknowledgements
// and writes the start command. The data characteristic is left to the caller.
func (d *Driver) Start(ctx context.Context) error {
	raw, err := d.gatt.Read(ctx, ServiceUUID, ControlUUID)
	if err != nil {
		return fmt.Errorf("read pmd control: %w", err)
	}
	d.features = ParseFeatures(raw)
	d.logger.WithFields(logrus.Fields{
		"features": d.features.String(),
		"raw":      hex.EncodeToString(raw),
	}).Debug("PMD control point read")

	if err := d.gatt.Subscribe(ctx, ServiceUUID, ControlUUID, d.onControl); err != nil {
		return fmt.Errorf("subscribe pmd control: %w", err)
	}

	cmd, err := d.start.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode start command: %w", err)
	}
	if err := d.gatt.Write(ctx, ServiceUUID, ControlUUID, cmd); err != nil {
		return fmt.Errorf("write start command: %w", err)
	}

	d.logger.WithFields(logrus.Fields{
		"measure":     d.start.Measure.String(),
		"sample_rate": d.start.SampleRate,
		"resolution":  d.start.Resolution,
	}).Info("PMD stream start requested")
	return nil
}

// Stop writes the stop command, then unsubscribes from the data and
// control characteristics in that order.
func (d *Driver) Stop(ctx context.Context) error {
	if err := d.gatt.Write(ctx, ServiceUUID, ControlUUID, StopCommand(d.start.Measure)); err != nil {
		return fmt.Errorf("write stop command: %w", err)
	}
	if err := d.gatt.Unsubscribe(ctx, ServiceUUID, DataUUID); err != nil {
		return fmt.Errorf("unsubscribe pmd data: %w", err)
	}
	if err := d.gatt.Unsubscribe(ctx, ServiceUUID, ControlUUID); err != nil {
		return fmt.Errorf("unsubscribe pmd control: %w", err)
	}
	d.logger.Debug("PMD stream stopped")
	return nil
}

// onControl receives control point acknowledgements. Their content is not acted upon.
func (d *Driver) onControl(data []byte) {
	d.logger.WithField("ack", hex.EncodeToString(data)).Debug("PMD control point notification")
}
