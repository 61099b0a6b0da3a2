// Package config parses the daemon's command line and optional YAML file
// into validated settings.
//
// Precedence is command line, then file, then built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/host-watchdog/internal/action"
	"github.com/sweeney/host-watchdog/internal/watchdog"
)

var (
	ErrMissingPath         = errors.New("--path is required")
	ErrInvalidActionTarget = errors.New("invalid action_target, expect <action>=<target>")
	ErrDuplicateAction     = errors.New("duplicate action target")
	ErrFallbackIncomplete  = errors.New("--fallback_action and --fallback_interval must be given together")
	ErrFallbackAlways      = errors.New("--fallback_always needs --fallback_action and --fallback_interval")
	ErrIntervalTooLarge    = errors.New("interval out of range")
)

// Defaults.
const (
	DefaultMQTTPrefix = "bmc/watchdog/host0"
	DefaultHeartbeat  = time.Minute
)

// File is the YAML file layout. Every field may also be set by a flag.
type File struct {
	Path              string         `yaml:"path"`
	Service           string         `yaml:"service"`
	Continue          bool           `yaml:"continue"`
	Target            string         `yaml:"target"`
	ActionTargets     []string       `yaml:"action_targets"`
	Fallback          FallbackConfig `yaml:"fallback"`
	WatchPostcodes    bool           `yaml:"watch_postcodes"`
	MinIntervalMs     uint64         `yaml:"min_interval_ms"`
	DefaultIntervalMs uint64         `yaml:"default_interval_ms"`
	MQTT              MQTTConfig     `yaml:"mqtt"`
	HTTP              string         `yaml:"http"`
	Log               LogConfig      `yaml:"log"`
}

type FallbackConfig struct {
	Action     string  `yaml:"action"`
	IntervalMs *uint64 `yaml:"interval_ms"`
	Always     bool    `yaml:"always"`
}

type MQTTConfig struct {
	// Broker is a paho URL such as tcp://localhost:1883. Empty disables MQTT.
	Broker    string        `yaml:"broker"`
	Prefix    string        `yaml:"prefix"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Settings is the validated result of Parse.
type Settings struct {
	Path     string
	Service  string
	Continue bool

	Targets         action.TargetMap
	Fallback        *watchdog.Fallback
	WatchPostcodes  bool
	MinInterval     time.Duration
	DefaultInterval time.Duration

	MQTT     MQTTConfig
	HTTPAddr string
	Log      LogConfig
}

// Parse reads args (without the program name). It returns pflag.ErrHelp
// when help was requested; usage has then been written to out.
func Parse(args []string, out io.Writer) (*Settings, error) {
	f := defaults()

	// First pass only locates --config; the file must be loaded before
	// the real parse so that flags override it.
	configPath, err := findConfigPath(args)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := loadFile(configPath, &f); err != nil {
			return nil, err
		}
	}

	fs := newFlagSet(&f, out)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return f.settings()
}

func defaults() File {
	return File{
		MQTT: MQTTConfig{Prefix: DefaultMQTTPrefix, Heartbeat: DefaultHeartbeat},
		Log:  LogConfig{Level: "info"},
	}
}

func newFlagSet(f *File, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("host-watchdog", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.SortFlags = false

	fs.String("config", "", "YAML configuration file; flags override its values")

	fs.StringVarP(&f.Path, "path", "p", f.Path, "object path, e.g. /xyz/openbmc_project/watchdog/host0 (required)")
	fs.StringVarP(&f.Service, "service", "s", f.Service, "D-Bus service name to own, e.g. xyz.openbmc_project.Watchdog; empty disables D-Bus")
	fs.BoolVarP(&f.Continue, "continue", "c", f.Continue, "continue running after a watchdog timeout")

	fs.StringVarP(&f.Target, "target", "t", f.Target, "unit started on timeout for every action but None (deprecated, use --action_target)")
	fs.StringArrayVarP(&f.ActionTargets, "action_target", "a", f.ActionTargets, "map an action to a unit or gpio:<chip>:<offset>[:<ms>] target, as <action>=<target>; repeatable")

	fs.StringVarP(&f.Fallback.Action, "fallback_action", "f", f.Fallback.Action, "action taken when the fallback expires")
	fs.VarP(&optionalMillis{p: &f.Fallback.IntervalMs}, "fallback_interval", "i", "fallback interval in milliseconds")
	fs.BoolVarP(&f.Fallback.Always, "fallback_always", "e", f.Fallback.Always, "arm the fallback even while the watchdog has never been enabled")

	fs.BoolVarP(&f.WatchPostcodes, "watch_postcodes", "w", f.WatchPostcodes, "reset the time remaining whenever a boot postcode is signalled")
	fs.Uint64VarP(&f.MinIntervalMs, "min_interval", "m", f.MinIntervalMs, "minimum interval in milliseconds")
	fs.Uint64VarP(&f.DefaultIntervalMs, "default_interval", "d", f.DefaultIntervalMs, "default interval in milliseconds (0 keeps 30000)")

	fs.StringVar(&f.MQTT.Broker, "broker", f.MQTT.Broker, "MQTT broker address, e.g. tcp://localhost:1883; empty disables MQTT")
	fs.StringVar(&f.MQTT.Prefix, "mqtt-prefix", f.MQTT.Prefix, "MQTT topic prefix")
	fs.DurationVar(&f.MQTT.Heartbeat, "heartbeat", f.MQTT.Heartbeat, "state heartbeat interval (0 to disable)")
	fs.StringVar(&f.HTTP, "http", f.HTTP, "HTTP status address, e.g. :8080; empty disables")

	fs.StringVar(&f.Log.Level, "log-level", f.Log.Level, "log level: debug, info, warn, error")
	fs.BoolVar(&f.Log.Development, "log-dev", f.Log.Development, "human-readable development logging")
	return fs
}

// findConfigPath scans args for --config without failing on other flags.
func findConfigPath(args []string) (string, error) {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	path := fs.String("config", "", "")
	// Short flags that take a value must be known here, or their values
	// would be mistaken for positional arguments. None of them matter.
	var ignored File
	fs.StringP("path", "p", "", "")
	fs.StringP("service", "s", "", "")
	fs.StringP("target", "t", "", "")
	fs.StringArrayP("action_target", "a", nil, "")
	fs.StringP("fallback_action", "f", "", "")
	fs.VarP(&optionalMillis{p: &ignored.Fallback.IntervalMs}, "fallback_interval", "i", "")
	fs.StringP("min_interval", "m", "", "")
	fs.StringP("default_interval", "d", "", "")
	fs.BoolP("help", "h", false, "")
	if err := fs.Parse(args); err != nil && !errors.Is(err, pflag.ErrHelp) {
		// The full parse reports the error with usage.
		return "", nil
	}
	return *path, nil
}

func loadFile(path string, f *File) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (f *File) settings() (*Settings, error) {
	if f.Path == "" {
		return nil, ErrMissingPath
	}

	targets, err := buildTargets(f.Target, f.ActionTargets)
	if err != nil {
		return nil, err
	}
	fallback, err := buildFallback(f.Fallback)
	if err != nil {
		return nil, err
	}
	minInterval, err := durationMillis("min_interval", f.MinIntervalMs)
	if err != nil {
		return nil, err
	}
	defaultInterval, err := durationMillis("default_interval", f.DefaultIntervalMs)
	if err != nil {
		return nil, err
	}
	if _, err := zapLevel(f.Log.Level); err != nil {
		return nil, err
	}

	return &Settings{
		Path:            f.Path,
		Service:         f.Service,
		Continue:        f.Continue,
		Targets:         targets,
		Fallback:        fallback,
		WatchPostcodes:  f.WatchPostcodes,
		MinInterval:     minInterval,
		DefaultInterval: defaultInterval,
		MQTT:            f.MQTT,
		HTTPAddr:        f.HTTP,
		Log:             f.Log,
	}, nil
}

// buildTargets applies the legacy target to every action but None, then
// lets --action_target entries replace it per action.
func buildTargets(legacy string, entries []string) (action.TargetMap, error) {
	targets := action.TargetMap{}
	if legacy != "" {
		targets[watchdog.ActionHardReset] = legacy
		targets[watchdog.ActionPowerOff] = legacy
		targets[watchdog.ActionPowerCycle] = legacy
	}

	seen := make(map[watchdog.Action]bool, len(entries))
	for _, entry := range entries {
		a, target, err := ParseActionTarget(entry)
		if err != nil {
			return nil, err
		}
		if seen[a] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAction, a)
		}
		seen[a] = true
		targets[a] = target
	}
	return targets, nil
}

// ParseActionTarget splits "<action>=<target>". The action may be short
// or namespaced; gpio: targets are checked for shape.
func ParseActionTarget(s string) (watchdog.Action, string, error) {
	key, target, ok := strings.Cut(s, "=")
	if !ok || target == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidActionTarget, s)
	}
	a, err := watchdog.ParseAction(key)
	if err != nil {
		return "", "", fmt.Errorf("bad action in %q: %w", s, err)
	}
	if strings.HasPrefix(target, action.GPIOPrefix) {
		if _, err := action.ParseGPIOTarget(target); err != nil {
			return "", "", err
		}
	}
	return a, target, nil
}

func buildFallback(c FallbackConfig) (*watchdog.Fallback, error) {
	hasAction := c.Action != ""
	hasInterval := c.IntervalMs != nil
	if hasAction != hasInterval {
		return nil, ErrFallbackIncomplete
	}
	if !hasAction {
		if c.Always {
			return nil, ErrFallbackAlways
		}
		return nil, nil
	}

	a, err := watchdog.ParseAction(c.Action)
	if err != nil {
		return nil, fmt.Errorf("bad fallback action: %w", err)
	}
	interval, err := durationMillis("fallback_interval", *c.IntervalMs)
	if err != nil {
		return nil, err
	}
	return &watchdog.Fallback{
		Action:   a,
		Interval: interval,
		Always:   c.Always,
	}, nil
}

// maxMillis is the largest millisecond count a time.Duration can hold.
const maxMillis = uint64(math.MaxInt64 / int64(time.Millisecond))

func durationMillis(name string, ms uint64) (time.Duration, error) {
	if ms > maxMillis {
		return 0, fmt.Errorf("%w: --%s %d exceeds %d ms", ErrIntervalTooLarge, name, ms, maxMillis)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Describe writes the action table and fallback policy in the form
// operators see at startup.
func (s *Settings) Describe(w io.Writer, entries []action.Entry) {
	fmt.Fprintln(w, "Action Targets:")
	for _, e := range entries {
		fmt.Fprintf(w, "  %s -> %s\n", e.Action.Namespaced(), e.Target)
	}
	if s.Fallback == nil {
		return
	}
	fmt.Fprintln(w, "Fallback Options:")
	fmt.Fprintf(w, "  Action: %s\n", s.Fallback.Action.Namespaced())
	fmt.Fprintf(w, "  Interval(ms): %d\n", s.Fallback.Interval.Milliseconds())
	fmt.Fprintf(w, "  Always re-execute: %t\n", s.Fallback.Always)
}

// optionalMillis is a uint64 flag that remembers whether it was given,
// so an explicit 0 differs from absent.
type optionalMillis struct {
	p **uint64
}

func (o *optionalMillis) Set(s string) error {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*o.p = &v
	return nil
}

func (o *optionalMillis) String() string {
	if o.p == nil || *o.p == nil {
		return ""
	}
	return strconv.FormatUint(**o.p, 10)
}

func (o *optionalMillis) Type() string { return "ms" }
