package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is prepended to every environment variable the sidecar reads.
	EnvPrefix = "LAZYMC_K8S"

	// DefaultNamespaceFile is where the kubelet mounts the pod's namespace.
	DefaultNamespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

	// DefaultMinReplicas is the replica count of the sleeping state.
	DefaultMinReplicas int32 = 0
	// DefaultMaxReplicas is the replica count of the active state.
	DefaultMaxReplicas int32 = 1
)

// Keys resolve to EnvPrefix + "_" + upper-cased key, e.g. LAZYMC_K8S_DEPLOYMENT_NAME.
const (
	keyDeploymentName     = "deployment_name"
	keyMinReplicas        = "min_replicas"
	keyMaxReplicas        = "max_replicas"
	keyLogLevel           = "log_level"
	keyMetricsBindAddress = "metrics_bind_address"
)

// Config is the validated run configuration of the sidecar.
type Config struct {
	// WorkloadName is the name of the Deployment to scale.
	WorkloadName string
	// WorkloadNamespace is the namespace of the Deployment, which is the pod's own namespace.
	WorkloadNamespace string
	// MinReplicas is applied on shutdown (sleeping state).
	MinReplicas int32
	// MaxReplicas is applied on startup (active state).
	MaxReplicas int32
	// LogLevel is the logger's severity threshold.
	LogLevel LogLevel
	// MetricsBindAddress enables the Prometheus endpoint when non-empty.
	MetricsBindAddress string
}

// Warnings reports settings that are accepted but probably not intended.
func (c Config) Warnings() []string {
	var warnings []string
	if c.MinReplicas >= c.MaxReplicas {
		warnings = append(warnings, fmt.Sprintf(
			"min replicas (%d) is not lower than max replicas (%d), the deployment will never go to sleep",
			c.MinReplicas, c.MaxReplicas))
	}
	return warnings
}

type options struct {
	fs            afero.Fs
	namespaceFile string
}

// Option customizes Resolve.
type Option func(*options)

// WithFs reads the namespace file from fs instead of the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithNamespaceFile overrides the namespace file path.
func WithNamespaceFile(path string) Option {
	return func(o *options) {
		o.namespaceFile = path
	}
}

// Resolve builds a Config from the process environment and the namespace file.
func Resolve(opts ...Option) (Config, error) {
	o := options{
		fs:            afero.NewOsFs(),
		namespaceFile: DefaultNamespaceFile,
	}
	for _, opt := range opts {
		opt(&o)
	}

	namespace, err := readNamespace(o.fs, o.namespaceFile)
	if err != nil {
		return Config{}, err
	}

	v := newViper()

	name := strings.TrimSpace(v.GetString(keyDeploymentName))
	if name == "" {
		return Config{}, ErrMissingDeploymentName
	}

	minReplicas, err := parseReplicas(v, keyMinReplicas)
	if err != nil {
		return Config{}, err
	}
	maxReplicas, err := parseReplicas(v, keyMaxReplicas)
	if err != nil {
		return Config{}, err
	}

	return Config{
		WorkloadName:       name,
		WorkloadNamespace:  namespace,
		MinReplicas:        minReplicas,
		MaxReplicas:        maxReplicas,
		LogLevel:           ParseLogLevel(v.GetString(keyLogLevel)),
		MetricsBindAddress: strings.TrimSpace(v.GetString(keyMetricsBindAddress)),
	}, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault(keyMinReplicas, strconv.Itoa(int(DefaultMinReplicas)))
	v.SetDefault(keyMaxReplicas, strconv.Itoa(int(DefaultMaxReplicas)))
	v.SetDefault(keyLogLevel, string(LogLevelInfo))
	v.SetDefault(keyMetricsBindAddress, "")
	return v
}

func readNamespace(fsys afero.Fs, path string) (string, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotInCluster, path)
		}
		return "", fmt.Errorf("reading namespace file %s: %w", path, err)
	}

	namespace := strings.TrimSpace(string(data))
	if namespace == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNotInCluster, path)
	}
	return namespace, nil
}

// parseReplicas parses base-10 only; "08" is eight, not an octal error.
func parseReplicas(v *viper.Viper, key string) (int32, error) {
	raw := strings.TrimSpace(v.GetString(key))
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s_%s=%q", ErrInvalidReplicaCount, EnvPrefix, strings.ToUpper(key), raw)
	}
	return int32(n), nil
}
