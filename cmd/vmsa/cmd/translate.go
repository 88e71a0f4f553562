package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/pkg/browser"
	"github.com/sarchlab/vmsa/config"
	"github.com/sarchlab/vmsa/datarecording"
	"github.com/sarchlab/vmsa/mem/vm"
	"github.com/sarchlab/vmsa/mem/vm/trace"
	"github.com/sarchlab/vmsa/monitoring"
	"github.com/sarchlab/vmsa/sim/hooking"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"k8s.io/klog"
)

type translateOptions struct {
	traceDB  string
	logTrace bool
	monitor  bool
	port     int
	open     bool
	hold     bool
}

var translateOpts translateOptions

var translateCmd = &cobra.Command{
	Use:   "translate [scenario.yaml]",
	Short: "Translate the accesses of a scenario.",
	Long: "`translate scenario.yaml` translates every access listed in the " +
		"scenario and prints the output address or the fault of each. " +
		"Without an argument the scenario named by " + envScenario +
		" is used.",
	Args: cobra.MaximumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		path := os.Getenv(envScenario)
		if len(args) > 0 {
			path = args[0]
		}

		if path == "" {
			klog.Exitf("No scenario given and %s is not set", envScenario)
		}

		if translateOpts.traceDB == "" {
			translateOpts.traceDB = os.Getenv(envTraceDB)
		}

		if err := runTranslate(path, translateOpts); err != nil {
			klog.Errorf("%v", err)
			atexit.Exit(1)
		}

		atexit.Exit(0)
	},
}

func init() {
	rootCmd.AddCommand(translateCmd)

	flags := translateCmd.Flags()
	flags.StringVar(&translateOpts.traceDB, "trace-db", "",
		"Record the translation tasks in a SQLite file. The "+traceDBSuffix+
			" suffix is added if missing. Defaults to "+envTraceDB+".")
	flags.BoolVar(&translateOpts.logTrace, "log-trace", false,
		"Print every translation task to stderr.")
	flags.BoolVar(&translateOpts.monitor, "monitor", false,
		"Serve the monitoring dashboard while translating.")
	flags.IntVar(&translateOpts.port, "port", 0,
		"The port of the monitoring server. A random port is used if unset.")
	flags.BoolVar(&translateOpts.open, "open", false,
		"Open the monitoring dashboard in a browser.")
	flags.BoolVar(&translateOpts.hold, "hold", false,
		"Keep the monitoring server running until interrupted.")
}

// runTranslate translates the accesses of the scenario at path.
func runTranslate(path string, opts translateOptions) error {
	scenario, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load scenario %s: %w", path, err)
	}

	sys, err := scenario.Build("MMU")
	if err != nil {
		return fmt.Errorf("failed to build scenario %s: %w", path, err)
	}

	features, err := scenario.FeatureSet()
	if err != nil {
		return fmt.Errorf("failed to read the features of %s: %w", path, err)
	}

	klog.Infof("Scenario %q: %d accesses, features %v",
		scenario.Name, len(sys.Accesses), features.Names())

	clock := hooking.NewWallClock()

	backTrace := hooking.NewBackTraceTracer(
		hooking.NewWriterTaskPrinter(os.Stderr))
	sys.Translator.AcceptHook(backTrace)

	defer func() {
		if r := recover(); r != nil {
			backTrace.DumpInFlight()
			panic(r)
		}
	}()

	if opts.traceDB != "" {
		recorder := datarecording.New(
			strings.TrimSuffix(opts.traceDB, traceDBSuffix))
		sys.Translator.AcceptHook(trace.NewDBTracer(recorder, clock))
		sys.Translator.AcceptHook(trace.NewTranslationRecorder(recorder))
		klog.Infof("Recording translations in %s", opts.traceDB)
	}

	if opts.logTrace {
		logger := log.New(os.Stderr, "", 0)
		sys.Translator.AcceptHook(trace.NewLogTracer(logger, clock))
	}

	var monitor *monitoring.Monitor
	if opts.monitor {
		monitor, err = startMonitor(sys, opts)
		if err != nil {
			return err
		}
	}

	translateAll(os.Stdout, scenario, sys, monitor)
	printSummary(os.Stdout, sys)

	if monitor != nil && opts.hold {
		klog.Infof("Monitoring server is running, press Ctrl-C to exit")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		<-sig
	}

	return nil
}

func startMonitor(
	sys *config.System,
	opts translateOptions,
) (*monitoring.Monitor, error) {
	monitor := monitoring.NewMonitor()
	if opts.port != 0 {
		monitor = monitor.WithPortNumber(opts.port)
	}

	monitor.RegisterComponent(sys.Translator)

	if sys.TLB != nil {
		monitor.RegisterComponent(sys.TLB)
	}

	url, err := monitor.StartServer()
	if err != nil {
		return nil, fmt.Errorf("failed to start monitoring server: %w", err)
	}

	if opts.open {
		if err := browser.OpenURL(url); err != nil {
			klog.Warningf("Failed to open %s: %v", url, err)
		}
	}

	return monitor, nil
}

func translateAll(
	out io.Writer,
	scenario *config.Scenario,
	sys *config.System,
	monitor *monitoring.Monitor,
) {
	var bar *monitoring.ProgressBar
	if monitor != nil {
		bar = monitor.CreateProgressBar(scenario.Name, uint64(len(sys.Accesses)))
		defer monitor.CompleteProgressBar(bar)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VA\tEL\tTYPE\tOP\tRESULT")

	for i, accdesc := range sys.Accesses {
		access := scenario.Accesses[i]

		if bar != nil {
			bar.StartTranslation()
		}

		result := sys.Translator.FullTranslate(
			access.VA, accdesc, access.IsAligned())

		fmt.Fprintf(w, "0x%x\t%s\t%s\t%s\t%s\n",
			access.VA, accdesc.EL, accdesc.AccType, operation(accdesc),
			describe(result))

		if bar != nil {
			bar.FinishTranslation(result.Fault.IsFault())
		}
	}

	w.Flush()
}

func operation(accdesc vm.AccessDescriptor) string {
	switch {
	case accdesc.Read && accdesc.Write:
		return "RW"
	case accdesc.Write:
		return "W"
	default:
		return "R"
	}
}

func describe(result vm.AddressDescriptor) string {
	if result.Fault.IsFault() {
		return "fault " + result.Fault.String()
	}

	s := result.PAddress.String()
	if result.MECID != vm.DefaultMECID {
		s += fmt.Sprintf(" MECID=%d", result.MECID)
	}

	return s
}

func printSummary(out io.Writer, sys *config.System) {
	if sys.TLB != nil {
		stats := sys.TLB.Stats()
		fmt.Fprintf(out, "TLB: %d hits, %d misses, %d evictions\n",
			stats.Hits, stats.Misses, stats.Evictions)
	}

	if sys.HDBSS != nil {
		fmt.Fprintf(out, "HDBSS: %d entries", sys.HDBSS.Index())

		if err := sys.HDBSS.Err(); err != nil {
			fmt.Fprintf(out, ", stopped: %v", err)
		}

		fmt.Fprintln(out)
	}
}
