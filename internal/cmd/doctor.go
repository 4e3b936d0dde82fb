package cmd

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/offlinefirst/bouncekeys/pkg/events"
	"github.com/offlinefirst/bouncekeys/pkg/permissions"
)

var (
	detectEnvironment = events.DetectEnvironment
	probePermissions  = func() []permissions.ProbeResult { return permissions.ProbeAll(nil) }
)

func newDoctorCommand() command {
	return command{
		name:        "doctor",
		description: "Report event source availability and permission state",
		configure: func(fs *flag.FlagSet) {
			fs.Bool("strict", false, "Exit with an error when the live key tap cannot run")
		},
		run: runDoctor,
	}
}

func runDoctor(fs *flag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}

	env := detectEnvironment()
	probes := probePermissions()
	ctx.Logger.Info("doctor invoked",
		zap.String("provider", env.Provider),
		zap.Bool("available", env.Available),
		zap.String("permission", env.Permission),
	)

	fmt.Fprintf(stdout, "bouncekeys %s\n", versionString())
	fmt.Fprintf(stdout, "Configuration: %s\n", ctx.Config.Source)
	fmt.Fprintf(stdout, "Event source: provider=%s available=%t permission=%s\n", env.Provider, env.Available, env.Permission)
	if env.Message != "" {
		fmt.Fprintf(stdout, "  %s\n", env.Message)
	}
	if env.Guidance != "" {
		fmt.Fprintf(stdout, "  hint: %s\n", env.Guidance)
	}

	fmt.Fprintln(stdout, "Permissions:")
	blocked := false
	for _, probe := range probes {
		fmt.Fprintf(stdout, "  - %s: %s", probe.Name, probe.StatusString())
		if probe.Message != "" {
			fmt.Fprintf(stdout, " (%s)", probe.Message)
		}
		fmt.Fprintln(stdout)
		if probe.Guidance != "" {
			fmt.Fprintf(stdout, "    hint: %s\n", probe.Guidance)
		}
		blocked = blocked || probe.Blocking()
	}

	fmt.Fprintf(stdout, "Filter: window=%s repeat_only=%t ignored=%s\n",
		ctx.Config.Filter.BounceWindow, ctx.Config.Filter.RepeatOnly, strings.Join(ctx.Config.Filter.IgnoredKeys, ","))
	fmt.Fprintf(stdout, "Notification sinks: %s\n", strings.Join(ctx.Config.Notify.Sinks, ", "))
	if ctx.Config.Metrics.Addr != "" {
		fmt.Fprintf(stdout, "Metrics: http://%s/metrics\n", ctx.Config.Metrics.Addr)
	} else {
		fmt.Fprintln(stdout, "Metrics: disabled")
	}

	if boolFlag(fs, "strict") && (!env.Available || blocked) {
		return errors.New("live key filtering unavailable; see doctor output")
	}
	return nil
}
