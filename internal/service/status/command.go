package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/alarm-silencer/internal/api/grpc/health"
	"github.com/oshokin/alarm-silencer/internal/config"
	domain "github.com/oshokin/alarm-silencer/internal/domain/alarm"
	"github.com/oshokin/alarm-silencer/internal/logger"
	repository "github.com/oshokin/alarm-silencer/internal/repository/state"
)

// Options controls the status output.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Out receives the report.
	Out io.Writer
	// Now stamps the snapshot age; time.Now when nil.
	Now func() time.Time
}

// never is printed for zero timestamps.
const never = "never"

// Run prints the persisted snapshot and the live health statuses. A missing
// snapshot is reported, not returned: the silencer may not have run yet.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-status")

	// Load settings from configuration file.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	repo := repository.NewFileRepository(cfg.Status.StateFile)

	snapshot, err := repo.Load(ctx)

	switch {
	case errors.Is(err, repository.ErrNotFound):
		_, _ = fmt.Fprintf(opts.Out, "No state recorded yet in %s\n", repo.Path())
	case err != nil:
		return fmt.Errorf("load state: %w", err)
	default:
		if err = writeSnapshot(opts.Out, snapshot, now()); err != nil {
			return err
		}
	}

	if cfg.Status.ListenAddress == "" {
		return nil
	}

	statuses, err := queryHealth(ctx, cfg)
	if err != nil {
		// The process may simply not be running.
		logger.WarnKV(ctx, "Health server unreachable", "address", cfg.Status.ListenAddress, "error", err)
		_, _ = fmt.Fprintf(opts.Out, "\nSilencer is not reachable at %s\n", cfg.Status.ListenAddress)

		return nil
	}

	return writeHealth(opts.Out, statuses)
}

// queryHealth asks the running silencer for its statuses.
func queryHealth(
	ctx context.Context,
	cfg *config.Config,
) (map[string]healthpb.HealthCheckResponse_ServingStatus, error) {
	client, err := health.Dial(cfg.Status.ListenAddress, health.WithCallTimeout(cfg.Blynk.Timeout))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = client.Close()
	}()

	return client.CheckAll(ctx)
}

// writeSnapshot renders the snapshot as an aligned table.
func writeSnapshot(out io.Writer, snapshot *domain.Snapshot, now time.Time) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	host := "unknown"
	if snapshot.Host != nil {
		host = snapshot.Host.String()
	}

	rows := [][2]string{
		{"Host", host},
		{"Taken at", formatTime(snapshot.TakenAt, now)},
		{"Remote alarm", snapshot.RemoteAlarm.String()},
		{"Cycle", orNone(snapshot.CycleID)},
		{"Audio playing", yesNo(snapshot.AudioPlaying)},
		{"Camera healthy", yesNo(snapshot.CameraHealthy)},
		{"Camera mode", orNone(snapshot.CameraMode)},
		{"Camera checked", formatTime(snapshot.CameraLastProbeAt, now)},
		{"Frame failures", fmt.Sprint(snapshot.FrameFailures)},
		{"Face present", yesNo(snapshot.FacePresent)},
		{"Face signal sent", yesNo(snapshot.FaceSignalSent)},
		{"Face last seen", formatTime(snapshot.LastFaceSeenAt, now)},
		{"Last remote poll", formatTime(snapshot.LastRemotePollAt, now)},
	}

	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s:\t%s\n", row[0], row[1])
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	return nil
}

// writeHealth renders the live statuses.
func writeHealth(out io.Writer, statuses map[string]healthpb.HealthCheckResponse_ServingStatus) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "\nLive status:")

	for _, service := range health.Services {
		name := service
		if name == health.ServiceLoop {
			name = "loop"
		}

		_, _ = fmt.Fprintf(w, "  %s:\t%s\n", name, statuses[service])
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	return nil
}

// formatTime renders t with its age relative to now.
func formatTime(t, now time.Time) string {
	if t.IsZero() {
		return never
	}

	return fmt.Sprintf("%s (%s ago)", t.Local().Format(time.DateTime), now.Sub(t).Truncate(time.Second))
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}

	return "no"
}

func orNone(value string) string {
	if value == "" {
		return "none"
	}

	return value
}
