package kubeharness

import (
	"flag"
	"fmt"
	"log/slog"
)

// Flag names registered by RegisterFlags.
const (
	// KubeConfigFlag sets the kubeconfig path for the harness.
	KubeConfigFlag = "kube-config"

	// KubeContextFlag selects a kubeconfig context.
	KubeContextFlag = "kube-context"

	// KubeLogLevelFlag sets the harness log level. One of debug, info,
	// warn, error.
	KubeLogLevelFlag = "kube-log-level"
)

// Flags holds the values of the harness command-line flags between
// registration and use. Obtain one via RegisterFlags.
type Flags struct {
	kubeconfig  string
	kubeContext string
	logLevel    string
}

// RegisterFlags registers the harness flags on fs and returns the Flags
// that will receive the parsed values. Test binaries typically call this
// from TestMain with flag.CommandLine before flag.Parse:
//
//	func TestMain(m *testing.M) {
//	    kubeFlags := kubeharness.RegisterFlags(flag.CommandLine)
//	    flag.Parse()
//	    opts, err := kubeFlags.Options()
//	    ...
//	}
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.kubeconfig, KubeConfigFlag, "",
		"path to the kubeconfig file to use for tests (default: standard resolution)")
	fs.StringVar(&f.kubeContext, KubeContextFlag, "",
		"kubeconfig context to use for tests (default: current context)")
	fs.StringVar(&f.logLevel, KubeLogLevelFlag, "warn",
		"harness log level: debug, info, warn, or error")
	return f
}

// Options converts the parsed flag values into harness options and applies
// the requested log level to the default logger. Call it after the flag set
// has been parsed. Returns an error for an unrecognized log level.
func (f *Flags) Options() ([]Option, error) {
	level, err := parseLogLevel(f.logLevel)
	if err != nil {
		return nil, err
	}
	SetLogLevel(level)

	var opts []Option
	if f.kubeconfig != "" {
		opts = append(opts, WithKubeconfig(f.kubeconfig))
	}
	if f.kubeContext != "" {
		opts = append(opts, WithKubeContext(f.kubeContext))
	}
	return opts, nil
}

// parseLogLevel maps a flag value to a slog level.
func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (want debug, info, warn, or error)", s)
	}
}
