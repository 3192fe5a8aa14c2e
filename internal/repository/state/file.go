package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/alarm-silencer/internal/config"
	domain "github.com/oshokin/alarm-silencer/internal/domain/alarm"
)

// Repository defines persistence operations for loop snapshots.
type Repository interface {
	Load(ctx context.Context) (*domain.Snapshot, error)
	Save(ctx context.Context, snapshot *domain.Snapshot) error
}

// FileRepository persists the latest snapshot to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the JSON state file.
	path string
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

// ErrNotFound is returned when the state file does not exist yet.
var ErrNotFound = errors.New("state not found")

// Snapshot field names in the state file.
const (
	fieldHostname       = "hostname"
	fieldUsername       = "username"
	fieldTakenAt        = "taken_at"
	fieldCameraProbeAt  = "camera_last_probe_at"
	fieldRemotePollAt   = "last_remote_poll_at"
	fieldFaceSeenAt     = "last_face_seen_at"
	fieldCycleID        = "cycle_id"
	fieldCameraMode     = "camera_mode"
	fieldRemoteAlarm    = "remote_alarm"
	fieldFrameFailures  = "frame_failures"
	fieldAudioPlaying   = "audio_playing"
	fieldCameraHealthy  = "camera_healthy"
	fieldFacePresent    = "face_present"
	fieldFaceSignalSent = "face_signal_sent"
)

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the state file location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the snapshot from disk.
func (r *FileRepository) Load(_ context.Context) (*domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	var record structpb.Struct
	if err = protojson.Unmarshal(contents, &record); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}

	return fromStruct(&record)
}

// Save writes the snapshot to disk.
func (r *FileRepository) Save(_ context.Context, snapshot *domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := toStruct(snapshot)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
		Indent:    "  ",
	}

	data, err := marshalOptions.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	return nil
}

// toStruct converts a snapshot into a protobuf Struct.
func toStruct(snapshot *domain.Snapshot) (*structpb.Struct, error) {
	fields := map[string]any{
		fieldTakenAt:        formatTime(snapshot.TakenAt),
		fieldCameraProbeAt:  formatTime(snapshot.CameraLastProbeAt),
		fieldRemotePollAt:   formatTime(snapshot.LastRemotePollAt),
		fieldFaceSeenAt:     formatTime(snapshot.LastFaceSeenAt),
		fieldCycleID:        snapshot.CycleID,
		fieldCameraMode:     snapshot.CameraMode,
		fieldRemoteAlarm:    snapshot.RemoteAlarm.String(),
		fieldFrameFailures:  snapshot.FrameFailures,
		fieldAudioPlaying:   snapshot.AudioPlaying,
		fieldCameraHealthy:  snapshot.CameraHealthy,
		fieldFacePresent:    snapshot.FacePresent,
		fieldFaceSignalSent: snapshot.FaceSignalSent,
	}

	if snapshot.Host != nil {
		fields[fieldHostname] = snapshot.Host.Hostname
		fields[fieldUsername] = snapshot.Host.Username
	}

	return structpb.NewStruct(fields)
}

// fromStruct converts a protobuf Struct into a snapshot.
func fromStruct(record *structpb.Struct) (*domain.Snapshot, error) {
	fields := record.GetFields()

	snapshot := &domain.Snapshot{
		CycleID:        fields[fieldCycleID].GetStringValue(),
		CameraMode:     fields[fieldCameraMode].GetStringValue(),
		RemoteAlarm:    parseFlagName(fields[fieldRemoteAlarm].GetStringValue()),
		FrameFailures:  int(fields[fieldFrameFailures].GetNumberValue()),
		AudioPlaying:   fields[fieldAudioPlaying].GetBoolValue(),
		CameraHealthy:  fields[fieldCameraHealthy].GetBoolValue(),
		FacePresent:    fields[fieldFacePresent].GetBoolValue(),
		FaceSignalSent: fields[fieldFaceSignalSent].GetBoolValue(),
	}

	timestamps := []struct {
		name string
		dst  *time.Time
	}{
		{fieldTakenAt, &snapshot.TakenAt},
		{fieldCameraProbeAt, &snapshot.CameraLastProbeAt},
		{fieldRemotePollAt, &snapshot.LastRemotePollAt},
		{fieldFaceSeenAt, &snapshot.LastFaceSeenAt},
	}

	for _, ts := range timestamps {
		parsed, err := parseTime(fields[ts.name].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", ts.name, err)
		}

		*ts.dst = parsed
	}

	hostname := fields[fieldHostname].GetStringValue()
	username := fields[fieldUsername].GetStringValue()

	if hostname != "" || username != "" {
		snapshot.Host = &domain.Actor{Hostname: hostname, Username: username}
	}

	return snapshot, nil
}

// formatTime renders t as RFC 3339; the zero time becomes an empty string.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.Format(time.RFC3339Nano)
}

// parseTime is the inverse of formatTime.
func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339Nano, value)
}

// parseFlagName is the inverse of FlagState.String.
func parseFlagName(name string) domain.FlagState {
	switch name {
	case domain.FlagArmed.String():
		return domain.FlagArmed
	case domain.FlagDisarmed.String():
		return domain.FlagDisarmed
	default:
		return domain.FlagUnknown
	}
}
