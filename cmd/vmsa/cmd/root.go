// Package cmd provides the command-line interface of vmsa.
package cmd

import (
	"errors"
	"flag"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"k8s.io/klog"
)

// The environment variables that supply default arguments. They can also be
// set in a .env file in the working directory.
const (
	envScenario = "VMSA_SCENARIO"
	envTraceDB  = "VMSA_TRACE_DB"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vmsa",
	Short: "vmsa runs AArch64 address translation scenarios.",
	Long: `vmsa loads a scenario that describes the translation registers, ` +
		`the translation tables in memory and a list of accesses, translates ` +
		`every access and reports the physical addresses or faults.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		loadEnv()
	},
}

func init() {
	goFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(goFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(goFlags)
}

func loadEnv() {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		klog.Warningf("Failed to load .env: %v", err)
	}
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	defer klog.Flush()

	err := rootCmd.Execute()
	if err != nil {
		klog.Flush()
		os.Exit(1)
	}
}
