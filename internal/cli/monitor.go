package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Maryclair03/Latest-LittleWatch/internal/alertsink"
	"github.com/Maryclair03/Latest-LittleWatch/internal/channel"
	"github.com/Maryclair03/Latest-LittleWatch/internal/mqtt"
	"github.com/Maryclair03/Latest-LittleWatch/internal/relay"
	"github.com/Maryclair03/Latest-LittleWatch/internal/runloop"
	"github.com/Maryclair03/Latest-LittleWatch/internal/service"
	"github.com/Maryclair03/Latest-LittleWatch/internal/vitals"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// MonitorOptions holds flags for the monitor command.
type MonitorOptions struct {
	Duration time.Duration
	Interval time.Duration
}

// NewMonitorCommand creates the monitor command.
func NewMonitorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MonitorOptions{}

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch live vitals from the linked band",
		Long: `Load the latest vitals, then keep them current through the realtime channel
with a periodic poll as fallback. Every change is printed as one line (or one
JSON object with --format json). Stops on Ctrl-C, after --duration, or when the
server rejects the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rootOpts.App()
			if err != nil {
				return err
			}
			return runMonitor(cmd, rootOpts, app, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "fallback poll interval (default from POLL_INTERVAL)")
	return cmd
}

func runMonitor(cmd *cobra.Command, rootOpts *RootOptions, app *App, opts *MonitorOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	cfg := *app.Config
	if opts.Interval > 0 {
		cfg.Poller.Interval = opts.Interval
	}
	logger := app.Logger

	deps := service.Deps{
		Store: app.Store,
		API:   app.API,
		NewChannel: func(executor runloop.Executor) (service.RealtimeChannel, error) {
			transport := channel.NewWebsocketTransport(cfg.Channel.HandshakeTimeout)
			ch, err := channel.NewChannel(&cfg, transport, executor, logger)
			if err != nil {
				return nil, err
			}
			ch.SetHeader("User-Agent", cfg.API.UserAgent)
			return ch, nil
		},
	}

	if cfg.Relay.Enabled {
		client, err := app.Redis(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to enable relay", err)
		}
		deps.Relay = relay.New(client, cfg.Relay.Stream, cfg.Relay.MaxLen, logger)
	}

	if cfg.AlertSink.Enabled {
		mc, err := mqtt.NewClient(&cfg.MQTT, logger)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to enable alert sink", err)
		}
		defer mc.Disconnect()
		deps.AlertSink = alertsink.New(mc, cfg.AlertSink.TopicPrefix, cfg.MQTT.QoS, logger)
	}

	svc := service.NewMonitorService(&cfg, deps, logger)

	var loggedOut bool
	var mu sync.Mutex
	svc.SetOnLogout(func() {
		mu.Lock()
		loggedOut = true
		mu.Unlock()
		stop()
	})

	printer := rootOpts.printer(cmd)
	var printMu sync.Mutex
	var last string
	svc.Projection().SetOnChange(func(v vitals.View) {
		printMu.Lock()
		defer printMu.Unlock()
		line := viewLine(v)
		if line == last {
			return
		}
		last = line
		if err := printer.EmitLine(v, func(w io.Writer) {
			fmt.Fprintf(w, "[%s] %s\n", time.Now().Format("15:04:05"), line)
		}); err != nil {
			logger.Warn("Failed to print vitals", zap.Error(err))
		}
	})

	if err := svc.Start(ctx); err != nil {
		svc.Wait()
		switch {
		case errors.Is(err, service.ErrNotLoggedIn):
			return NewExitError(ExitCommandError, "not logged in, run `littlewatch login` first")
		case errors.Is(err, service.ErrNoDevice):
			return NewExitError(ExitCommandError, "no device linked, run `littlewatch link <serial>` first")
		}
		return requestError("start monitor", err)
	}

	<-ctx.Done()
	svc.Stop()
	svc.Wait()

	mu.Lock()
	defer mu.Unlock()
	if loggedOut {
		return NewExitError(ExitCommandError, "session expired, please log in again")
	}
	return nil
}

// viewLine renders the view as a single line of text.
func viewLine(v vitals.View) string {
	parts := []string{
		v.Indicator,
		vitalText("HR", v.HeartRate),
		vitalText("Temp", v.Temperature),
		vitalText("SpO2", v.Oxygen),
		"Movement " + v.Movement,
		"Battery " + v.Battery,
	}
	if !v.DeviceConnected {
		parts = append(parts, "band offline")
	}
	if v.HasAlert {
		parts = append(parts, "ALERT")
	}
	return strings.Join(parts, " | ")
}

func vitalText(name string, vv vitals.VitalView) string {
	if vv.Value == vitals.Placeholder {
		return fmt.Sprintf("%s %s (%s)", name, vv.Value, vv.Label)
	}
	return fmt.Sprintf("%s %s %s (%s)", name, vv.Value, vv.Unit, vv.Label)
}
