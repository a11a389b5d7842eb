package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Coordinator configures the coordinator process.
type Coordinator struct {
	Port              int           `yaml:"port"`
	ReplicationFactor int           `yaml:"replication_factor"`
	Timeout           time.Duration `yaml:"timeout"`
	RebalancePeriod   time.Duration `yaml:"rebalance_period"`
	AdminAddr         string        `yaml:"admin_addr"`
	ClientRate        float64       `yaml:"client_rate"`
	ClientBurst       int           `yaml:"client_burst"`
	LogLevel          string        `yaml:"log_level"`
}

// Node configures a storage node process.
type Node struct {
	Port         int           `yaml:"port"`
	Coordinator  string        `yaml:"coordinator"`
	Advertise    string        `yaml:"advertise"`
	Timeout      time.Duration `yaml:"timeout"`
	Dir          string        `yaml:"dir"`
	JoinAttempts int           `yaml:"join_attempts"`
	JoinInterval time.Duration `yaml:"join_interval"`
	LogLevel     string        `yaml:"log_level"`
}

// DefaultCoordinator returns the coordinator defaults.
func DefaultCoordinator() Coordinator {
	return Coordinator{
		Port:              4000,
		ReplicationFactor: 3,
		Timeout:           time.Second,
		ClientBurst:       16,
		LogLevel:          "info",
	}
}

// DefaultNode returns the storage node defaults.
func DefaultNode() Node {
	return Node{
		Port:         4001,
		Coordinator:  "127.0.0.1:4000",
		Timeout:      time.Second,
		JoinAttempts: 10,
		JoinInterval: 400 * time.Millisecond,
		LogLevel:     "info",
	}
}

// LoadCoordinator returns defaults overlaid with the file at path (if not
// empty) and the COORDINATOR_* environment.
func LoadCoordinator(path string) (Coordinator, error) {
	cfg := DefaultCoordinator()
	if err := decodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	err := applyEnv(
		envInt("COORDINATOR_PORT", &cfg.Port),
		envInt("COORDINATOR_REPLICATION", &cfg.ReplicationFactor),
		envDuration("COORDINATOR_TIMEOUT", &cfg.Timeout),
		envDuration("COORDINATOR_REBALANCE", &cfg.RebalancePeriod),
		envString("COORDINATOR_ADMIN_ADDR", &cfg.AdminAddr),
		envFloat("COORDINATOR_CLIENT_RATE", &cfg.ClientRate),
		envInt("COORDINATOR_CLIENT_BURST", &cfg.ClientBurst),
		envString("REPLISTORE_LOG_LEVEL", &cfg.LogLevel),
	)
	return cfg, err
}

// LoadNode returns defaults overlaid with the file at path (if not empty)
// and the NODE_* environment.
func LoadNode(path string) (Node, error) {
	cfg := DefaultNode()
	if err := decodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	err := applyEnv(
		envInt("NODE_PORT", &cfg.Port),
		envString("COORDINATOR_ADDR", &cfg.Coordinator),
		envString("NODE_ADVERTISE", &cfg.Advertise),
		envDuration("NODE_TIMEOUT", &cfg.Timeout),
		envString("NODE_DIR", &cfg.Dir),
		envInt("NODE_JOIN_ATTEMPTS", &cfg.JoinAttempts),
		envString("REPLISTORE_LOG_LEVEL", &cfg.LogLevel),
	)
	return cfg, err
}

// Validate checks the coordinator settings.
func (c Coordinator) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.ReplicationFactor < 1 {
		errs = append(errs, fmt.Errorf("replication factor must be at least 1, got %d", c.ReplicationFactor))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %v", c.Timeout))
	}
	if c.RebalancePeriod < 0 {
		errs = append(errs, fmt.Errorf("rebalance period must not be negative, got %v", c.RebalancePeriod))
	}
	if c.ClientRate < 0 {
		errs = append(errs, fmt.Errorf("client rate must not be negative, got %v", c.ClientRate))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate checks the storage node settings.
func (n Node) Validate() error {
	var errs []error
	if n.Port < 0 || n.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", n.Port))
	}
	if n.Coordinator == "" {
		errs = append(errs, errors.New("coordinator address is required"))
	}
	if n.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %v", n.Timeout))
	}
	if n.Dir == "" {
		errs = append(errs, errors.New("storage directory is required"))
	}
	if n.JoinAttempts < 0 {
		errs = append(errs, fmt.Errorf("join attempts must not be negative, got %d", n.JoinAttempts))
	}
	if _, err := ParseLevel(n.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// AdvertiseAddr is the address token the node joins with: Advertise if set,
// otherwise the bare listen port.
func (n Node) AdvertiseAddr() string {
	if n.Advertise != "" {
		return n.Advertise
	}
	return strconv.Itoa(n.Port)
}

// decodeFile strictly decodes YAML from path into out. Unknown keys are errors.
func decodeFile(path string, out any) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
