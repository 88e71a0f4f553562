package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/sarchlab/vmsa/datarecording"
	"github.com/sarchlab/vmsa/mem/vm/trace"
	"github.com/spf13/cobra"
	"k8s.io/klog"
)

// Successful translations are recorded without a fault name.
const noFault = "None"

type reportOptions struct {
	fault    string
	location string
	limit    int
	steps    bool
}

var reportOpts reportOptions

var reportCmd = &cobra.Command{
	Use:   "report [trace.sqlite3]",
	Short: "Summarize the translations recorded in a trace database.",
	Long: "`report trace.sqlite3` lists the translations recorded by " +
		"`translate --trace-db` and counts them by fault. Without an " +
		"argument the database named by " + envTraceDB + " is read.",
	Args: cobra.MaximumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		path := os.Getenv(envTraceDB)
		if len(args) > 0 {
			path = args[0]
		}

		if path == "" {
			klog.Exitf("No trace database given and %s is not set", envTraceDB)
		}

		reader, err := datarecording.NewReader(traceDBFile(path))
		if err != nil {
			klog.Exitf("Failed to open trace database %s: %v", path, err)
		}
		defer reader.Close()

		trace.MapTables(reader)

		err = report(context.Background(), os.Stdout, reader, reportOpts)
		if err != nil {
			klog.Exitf("Failed to read trace database %s: %v", path, err)
		}
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	flags := reportCmd.Flags()
	flags.StringVar(&reportOpts.fault, "fault", "",
		"Only list translations that ended with this fault, e.g. Permission.")
	flags.StringVar(&reportOpts.location, "where", "",
		"Only list translations performed by this translator.")
	flags.IntVar(&reportOpts.limit, "limit", 0,
		"The maximum number of translations to list.")
	flags.BoolVar(&reportOpts.steps, "steps", false,
		"List the walk steps of every translation.")
}

// The suffix of the trace database files the recorder creates.
const traceDBSuffix = ".sqlite3"

func traceDBFile(path string) string {
	if strings.HasSuffix(path, traceDBSuffix) {
		return path
	}

	return path + traceDBSuffix
}

func report(
	ctx context.Context,
	out io.Writer,
	reader datarecording.DataReader,
	opts reportOptions,
) error {
	params := datarecording.QueryParams{OrderBy: "rowid", Limit: opts.limit}
	params.Where, params.Args = translationFilter(opts)

	rows, total, err := reader.Query(ctx, trace.TranslationTable, params)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWHERE\tEL\tREGIME\tTYPE\tVA\tRESULT")

	for _, row := range rows {
		e := row.(*trace.TranslationEntry)

		result := e.PASpace + ":" + e.PA
		if e.Fault != "" {
			result = fmt.Sprintf("%s(stage %d, level %d)", e.Fault, e.Stage, e.Level)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Location, e.EL, e.Regime, e.AccType, e.VA, result)

		if opts.steps {
			if err := printSteps(ctx, w, reader, e.ID); err != nil {
				return err
			}
		}
	}

	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%d of %d translations listed\n", len(rows), total)

	return printFaultCounts(ctx, out, reader, opts)
}

func translationFilter(opts reportOptions) (string, []any) {
	where := ""
	args := []any{}

	add := func(cond string, arg any) {
		if where != "" {
			where += " AND "
		}

		where += cond
		args = append(args, arg)
	}

	switch opts.fault {
	case "":
	case noFault:
		add("Fault = ?", "")
	default:
		add("Fault = ?", opts.fault)
	}

	if opts.location != "" {
		add("Location = ?", opts.location)
	}

	return where, args
}

func printSteps(
	ctx context.Context,
	w io.Writer,
	reader datarecording.DataReader,
	taskID string,
) error {
	steps, _, err := reader.Query(ctx, trace.StepTable,
		datarecording.QueryParams{
			Where:   "TaskID = ?",
			Args:    []any{taskID},
			OrderBy: "Time",
		})
	if err != nil {
		return err
	}

	for _, row := range steps {
		s := row.(*trace.StepEntry)
		fmt.Fprintf(w, "\t\t\t\t%s\t%s\t\n", s.What, s.Detail)
	}

	return nil
}

func printFaultCounts(
	ctx context.Context,
	out io.Writer,
	reader datarecording.DataReader,
	opts reportOptions,
) error {
	params := datarecording.QueryParams{}
	if opts.location != "" {
		params.Where = "Location = ?"
		params.Args = []any{opts.location}
	}

	rows, _, err := reader.Query(ctx, trace.TranslationTable, params)
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	for _, row := range rows {
		fault := row.(*trace.TranslationEntry).Fault
		if fault == "" {
			fault = noFault
		}

		counts[fault]++
	}

	faults := make([]string, 0, len(counts))
	for f := range counts {
		faults = append(faults, f)
	}

	sort.Strings(faults)

	for _, f := range faults {
		fmt.Fprintf(out, "%-20s %d\n", f, counts[f])
	}

	return nil
}
