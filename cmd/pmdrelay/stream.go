package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/pmdrelay/internal/devicefactory"
	"github.com/srg/pmdrelay/pkg/config"
	"github.com/srg/pmdrelay/pkg/observer"
	"github.com/srg/pmdrelay/pkg/relay"
	"github.com/srg/pmdrelay/pkg/session"
)

// streamCmd represents the stream command
var streamCmd = &cobra.Command{
	Use:   "stream [device-address]",
	Short: "Stream ECG samples from a Polar sensor to a relay target",
	Long: fmt.Sprintf(`Connects to a Polar sensor, starts its ECG stream and forwards every decoded
sample to the relay target as a signed 16-bit little-endian integer, with no
framing. Heart rate, battery level and the incoming sample rate are shown on
the console and published to the configured event sinks.

Relay targets:
  tcp   connect to --host:--port (default)
  pty   expose the stream on a pseudo-terminal, optionally symlinked with --pty-link
  none  decode and report only

Press Ctrl+C to stop; the stream is shut down cleanly within one tick.

Example:
  pmdrelay stream %s
  pmdrelay stream --relay pty --pty-link /tmp/ecg %s
  pmdrelay stream --mqtt-broker localhost:1883 --websocket-addr :8080 %s

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.MaximumNArgs(1),
	RunE: runStream,
}

// newDevice creates the BLE device for a session; tests substitute a fake.
var newDevice devicefactory.Factory = devicefactory.NewDevice

func init() {
	d := config.DefaultConfig()
	f := streamCmd.Flags()

	f.BoolP("verbose", "V", false, "Enable debug logging")
	f.Duration("connect-timeout", d.Device.ConnectTimeout, "Connection timeout")
	f.Duration("op-timeout", d.Device.OpTimeout, "Timeout for a single characteristic read or write")

	f.Uint16("sample-rate", d.Stream.SampleRate, "ECG sample rate setting sent to the sensor")
	f.Uint16("resolution", d.Stream.Resolution, "ECG resolution setting sent to the sensor")
	f.Duration("tick-interval", d.Stream.TickInterval, "Sample rate estimation interval")

	f.String("relay", d.Relay.Kind, "Relay target: tcp, pty or none")
	f.String("host", d.Relay.Host, "TCP relay host")
	f.Int("port", d.Relay.Port, "TCP relay port")
	f.String("pty-link", d.Relay.PTYLink, "Create a symlink to the relay PTY (e.g., /tmp/ecg)")

	f.Bool("console", d.Observer.Console, "Show the live status line")
	f.String("websocket-addr", d.Observer.WebSocketAddr, "Serve events over WebSocket on this address (e.g., :8080)")
	f.String("mqtt-broker", d.Observer.MQTTBroker, "Publish events to this MQTT broker (host:port)")
	f.String("mqtt-topic", d.Observer.MQTTTopic, "MQTT topic prefix")
	f.Bool("mqtt-samples", d.Observer.MQTTSamples, "Also publish raw sample batches over MQTT")
}

func runStream(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Device.Address = args[0]
	}
	if cfg.Device.Address == "" {
		return fmt.Errorf("device address is required (argument or device.address in the config)")
	}

	// Configure logger based on --log-level and --verbose flags
	logger, err := configureLogger(cmd, cfg, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	// Ctrl+C cancels the session; it notices at the next tick
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	sinks, err := buildSinks(ctx, cfg, logger, out, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	bridge := observer.NewBridge(cfg.Observer.QueueSize, logger, sinks...)
	defer func() {
		if err := bridge.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close event sinks")
		}
	}()

	opts := session.Options{
		Address:          cfg.Device.Address,
		ConnectTimeout:   cfg.Device.ConnectTimeout,
		OpTimeout:        cfg.Device.OpTimeout,
		TickInterval:     cfg.Stream.TickInterval,
		WindowSize:       cfg.Stream.Window,
		StartCommand:     cfg.StartCommand(),
		RelayDialer:      announceRelay(cfg.RelayDialer(logger), cmd.ErrOrStderr()),
		RelayStagingSize: cfg.Relay.StagingSize,
		EventQueueSize:   cfg.Stream.QueueSize,
		Observer:         bridge,
		Device:           newDevice(cfg.Device.Address, logger),
		Logger:           logger,
	}

	// The console sink shows the session state itself
	if !cfg.Observer.Console {
		progress := NewProgressPrinter(out, fmt.Sprintf("Streaming from %s", cfg.Device.Address),
			session.PhaseConnecting, session.PhaseStreaming, session.PhaseFailed, session.PhaseDisconnected)
		progress.Start()
		defer progress.Stop()
		opts.Progress = progress.Callback()
	}

	sess, err := session.New(opts)
	if err != nil {
		return err
	}
	bridge.SetSession(sess.ID())
	bridge.Start(ctx)

	if err := sess.Run(ctx); err != nil {
		return err
	}
	printSummary(out, sess)
	return nil
}

// buildSinks creates the event sinks enabled in cfg. The log sink is always present.
func buildSinks(ctx context.Context, cfg *config.Config, logger *logrus.Logger, out, info io.Writer) ([]observer.Sink, error) {
	sinks := []observer.Sink{observer.NewLogSink(logger)}
	fail := func(err error) ([]observer.Sink, error) {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, err
	}

	if cfg.Observer.Console {
		sinks = append(sinks, observer.NewConsoleSink(out))
	}

	if addr := cfg.Observer.WebSocketAddr; addr != "" {
		ws := observer.NewWebSocketSink(logger)
		bound, err := ws.Listen(addr)
		if err != nil {
			return fail(fmt.Errorf("failed to start WebSocket events on %s: %w", addr, err))
		}
		sinks = append(sinks, ws)
		fmt.Fprintf(info, "Events: ws://%s%s\n", bound, observer.EventsPath)
	}

	if cfg.Observer.MQTTBroker != "" {
		m, err := observer.DialMQTT(ctx, cfg.MQTTOptions(), logger)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to MQTT broker: %w", err))
		}
		sinks = append(sinks, m)
		fmt.Fprintf(info, "Events: mqtt://%s/%s/#\n", cfg.Observer.MQTTBroker, cfg.Observer.MQTTTopic)
	}

	return sinks, nil
}

// announceRelay prints the relay target once it is open, so PTY users learn the device name.
func announceRelay(dial relay.Dialer, w io.Writer) relay.Dialer {
	return func(ctx context.Context) (relay.Target, error) {
		t, err := dial(ctx)
		if err != nil {
			fmt.Fprintf(w, "Relay unavailable: %v (streaming without relay)\n", err)
			return nil, err
		}
		if t != nil {
			fmt.Fprintf(w, "Relay: %s\n", t)
		}
		return t, nil
	}
}

func printSummary(w io.Writer, sess *session.Session) {
	st := sess.Stats()
	id := sess.Identity()
	fmt.Fprintf(w, "\nStopped. %s %s: %d frames, %d samples, %d relayed bytes",
		id.Manufacturer, id.Model, st.Frames, st.Samples, st.Relay.BytesWritten)
	var notes []string
	if st.Malformed > 0 {
		notes = append(notes, fmt.Sprintf("%d malformed frames", st.Malformed))
	}
	if st.EventsDropped > 0 {
		notes = append(notes, fmt.Sprintf("%d notifications dropped", st.EventsDropped))
	}
	if st.Relay.Skipped > 0 {
		notes = append(notes, fmt.Sprintf("%d batches not relayed", st.Relay.Skipped))
	}
	if len(notes) > 0 {
		fmt.Fprintf(w, " (%s)", strings.Join(notes, ", "))
	}
	fmt.Fprintln(w)
}
