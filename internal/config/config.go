package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/alarm-silencer/internal/logger"
)

// Config holds every setting of the alarm silencer.
type Config struct {
	// Blynk describes the remote flag store.
	Blynk Blynk `yaml:"blynk"`
	// Camera describes the ESP32-CAM endpoints.
	Camera Camera `yaml:"camera"`
	// Detector configures face detection and debouncing.
	Detector Detector `yaml:"detector"`
	// Audio configures local playback.
	Audio Audio `yaml:"audio"`
	// Loop configures the synchronization cadence.
	Loop Loop `yaml:"loop"`
	// MQTT optionally mirrors state transitions to a broker.
	MQTT MQTT `yaml:"mqtt"`
	// Status configures the gRPC health listener and the snapshot file.
	Status Status `yaml:"status"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Blynk holds remote flag store settings.
type Blynk struct {
	// Server is a host name (https is implied) or a base URL with scheme.
	Server string `yaml:"server" validate:"required"`
	// Token is the device auth token; BLYNK_TOKEN overrides it.
	Token string `yaml:"token" validate:"required"`
	// AlarmPin is the pin raised by the microcontroller while the alarm sounds.
	AlarmPin string `yaml:"alarm_pin" validate:"required"`
	// FacePin receives the debounced face-presence signal.
	FacePin string `yaml:"face_pin" validate:"required,nefield=AlarmPin"`
	// Timeout bounds every remote call.
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// Camera holds camera endpoint settings.
type Camera struct {
	// StreamURL is the MJPEG endpoint.
	StreamURL string `yaml:"stream_url" validate:"omitempty,url"`
	// CaptureURL is the still image endpoint.
	CaptureURL string `yaml:"capture_url" validate:"required,url"`
	// OpenTimeout bounds opening the stream.
	OpenTimeout time.Duration `yaml:"open_timeout" validate:"gt=0"`
	// ReadTimeout bounds reading one stream frame.
	ReadTimeout time.Duration `yaml:"read_timeout" validate:"gt=0"`
	// CaptureTimeout bounds a still capture.
	CaptureTimeout time.Duration `yaml:"capture_timeout" validate:"gt=0"`
	// HealthTimeout bounds a health probe.
	HealthTimeout time.Duration `yaml:"health_timeout" validate:"gt=0"`
	// HealthInterval throttles health probes.
	HealthInterval time.Duration `yaml:"health_interval" validate:"gt=0"`
	// MinHealthBytes is the smallest plausible still image. An explicit 0
	// accepts any non-empty capture.
	MinHealthBytes *int `yaml:"min_health_bytes" validate:"gte=0"`
	// MaxStreamFailures demotes the stream to still capture.
	MaxStreamFailures int `yaml:"max_stream_failures" validate:"gt=0"`
	// MaxFrameFailures force-stops audio while the camera keeps failing.
	MaxFrameFailures int `yaml:"max_frame_failures" validate:"gt=0"`
	// FrameInterval paces still captures.
	FrameInterval time.Duration `yaml:"frame_interval" validate:"gt=0"`
	// StreamFrameInterval paces stream reads.
	StreamFrameInterval time.Duration `yaml:"stream_frame_interval" validate:"gt=0"`
}

// Detector holds face detection settings.
type Detector struct {
	// CascadeFile is the Haar cascade XML.
	CascadeFile string `yaml:"cascade_file" validate:"required"`
	// ScaleFactor is the image size reduction between scans.
	ScaleFactor float64 `yaml:"scale_factor" validate:"gt=1"`
	// MinNeighbors is the number of neighbor rectangles needed to confirm a face.
	MinNeighbors *int `yaml:"min_neighbors" validate:"gte=0"`
	// MinSize is the smallest face side in pixels; 0 lets the detector decide.
	MinSize *int `yaml:"min_size" validate:"gte=0"`
	// NoFaceTimeout is how long zero detections must last before clearing the signal.
	NoFaceTimeout time.Duration `yaml:"no_face_timeout" validate:"gt=0"`
}

// Audio holds playback settings.
type Audio struct {
	// Clip is the WAV file looped while the alarm is armed.
	Clip string `yaml:"clip"`
	// Disabled turns local playback off entirely.
	Disabled bool `yaml:"disabled"`
}

// Loop holds cadence settings.
type Loop struct {
	// PollInterval is the remote flag polling cadence.
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
	// AudioOnly skips frame acquisition and detection.
	AudioOnly bool `yaml:"audio_only"`
	// Preview shows a local window with detections.
	Preview bool `yaml:"preview"`
}

// MQTT holds event mirror settings. An empty broker disables the mirror.
type MQTT struct {
	// Broker is host:port of the broker.
	Broker string `yaml:"broker"`
	// Topic is the base topic.
	Topic string `yaml:"topic" validate:"required_with=Broker"`
	// ClientID prefix; a random suffix is appended.
	ClientID string `yaml:"client_id"`
	// QoS of published messages.
	QoS byte `yaml:"qos" validate:"lte=2"`
}

// Status holds status reporting settings.
type Status struct {
	// ListenAddress enables the gRPC health server when set.
	ListenAddress string `yaml:"listen_address"`
	// StateFile is where state snapshots are written.
	StateFile string `yaml:"state_file"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "alarm-silencer.yaml"

	// DefaultStateFilename is the default filename for state snapshots.
	DefaultStateFilename = "alarm-silencer-state.json"

	// DefaultFilePermissions is the permission of files written by the silencer.
	DefaultFilePermissions = 0o600

	// TokenEnvVar overrides Blynk.Token.
	TokenEnvVar = "BLYNK_TOKEN"

	// envFilename is looked up next to the config file.
	envFilename = ".env"
)

// Defaults match the stock ESP32-CAM alarm firmware setup.
const (
	DefaultBlynkServer         = "blynk.cloud"
	DefaultAlarmPin            = "V5"
	DefaultFacePin             = "V4"
	DefaultTimeout             = 5 * time.Second
	DefaultOpenTimeout         = 5 * time.Second
	DefaultReadTimeout         = 3 * time.Second
	DefaultCaptureTimeout      = 5 * time.Second
	DefaultHealthTimeout       = 3 * time.Second
	DefaultHealthInterval      = 60 * time.Second
	DefaultMinHealthBytes      = 1000
	DefaultMaxStreamFailures   = 5
	DefaultMaxFrameFailures    = 3
	DefaultFrameInterval       = time.Second
	DefaultStreamFrameInterval = 50 * time.Millisecond
	DefaultCascadeFile         = "haarcascade_frontalface_default.xml"
	DefaultScaleFactor         = 1.1
	DefaultMinNeighbors        = 5
	DefaultMinSize             = 30
	DefaultNoFaceTimeout       = 5 * time.Second
	DefaultPollInterval        = time.Second
	DefaultMQTTTopic           = "iot_alarm/face_detection"
	DefaultMQTTClientID        = "alarm-silencer"
)

// errConfigIsNotSet is returned when a nil configuration is provided.
var errConfigIsNotSet = errors.New("configuration is not set")

// Load reads configuration from path, applies the .env file found next to it
// and the BLYNK_TOKEN override, then validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	path = filepath.Clean(path)

	if err := loadEnv(filepath.Join(filepath.Dir(path), envFilename)); err != nil {
		return nil, err
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if token := strings.TrimSpace(os.Getenv(TokenEnvVar)); token != "" {
		cfg.Blynk.Token = token
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// The token is a secret.
	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults for unset fields and checks the result.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	applyDefaults(cfg)

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("invalid settings: unknown log level %q", cfg.LogLevel)
	}

	if cfg.Status.ListenAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", cfg.Status.ListenAddress); err != nil {
			return fmt.Errorf("invalid status listen address: %w", err)
		}
	}

	if cfg.MQTT.Broker != "" {
		if _, _, err := net.SplitHostPort(cfg.MQTT.Broker); err != nil {
			return fmt.Errorf("invalid mqtt broker: %w", err)
		}
	}

	return nil
}

//nolint:cyclop // A flat list of defaults reads better than a table.
func applyDefaults(cfg *Config) {
	setDefault(&cfg.Blynk.Server, DefaultBlynkServer)
	setDefault(&cfg.Blynk.AlarmPin, DefaultAlarmPin)
	setDefault(&cfg.Blynk.FacePin, DefaultFacePin)
	setDefault(&cfg.Blynk.Timeout, DefaultTimeout)

	setDefault(&cfg.Camera.OpenTimeout, DefaultOpenTimeout)
	setDefault(&cfg.Camera.ReadTimeout, DefaultReadTimeout)
	setDefault(&cfg.Camera.CaptureTimeout, DefaultCaptureTimeout)
	setDefault(&cfg.Camera.HealthTimeout, DefaultHealthTimeout)
	setDefault(&cfg.Camera.HealthInterval, DefaultHealthInterval)
	setDefaultPtr(&cfg.Camera.MinHealthBytes, DefaultMinHealthBytes)
	setDefault(&cfg.Camera.MaxStreamFailures, DefaultMaxStreamFailures)
	setDefault(&cfg.Camera.MaxFrameFailures, DefaultMaxFrameFailures)
	setDefault(&cfg.Camera.FrameInterval, DefaultFrameInterval)
	setDefault(&cfg.Camera.StreamFrameInterval, DefaultStreamFrameInterval)

	setDefault(&cfg.Detector.CascadeFile, DefaultCascadeFile)
	setDefault(&cfg.Detector.ScaleFactor, DefaultScaleFactor)
	setDefaultPtr(&cfg.Detector.MinNeighbors, DefaultMinNeighbors)
	setDefaultPtr(&cfg.Detector.MinSize, DefaultMinSize)
	setDefault(&cfg.Detector.NoFaceTimeout, DefaultNoFaceTimeout)

	setDefault(&cfg.Loop.PollInterval, DefaultPollInterval)

	setDefault(&cfg.MQTT.Topic, DefaultMQTTTopic)
	setDefault(&cfg.MQTT.ClientID, DefaultMQTTClientID)

	setDefault(&cfg.Status.StateFile, DefaultStateFilename)
}

// setDefault assigns value when *field holds the zero value.
func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// setDefaultPtr assigns value when the setting is absent, so an explicit zero survives.
func setDefaultPtr[T any](field **T, value T) {
	if *field == nil {
		*field = &value
	}
}

// loadEnv loads variables from an optional .env file without overriding the environment.
func loadEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("load %s: %w", path, err)
}
