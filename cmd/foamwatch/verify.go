package main

import (
	"github.com/spf13/cobra"
)

var (
	verifyConfigPath  string
	verifySchemaPath  string
	verifyLogs        []string
	verifyOutput      string
	verifyTimeout     float64
	verifyTargetTime  float64
	verifyExplosion   float64
	verifyStallWindow int
	verifyRecordFile  string
	verifyGreptime    string
	verifyVerbose     bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify [case-dir]",
	Short: "Classify a completed run from its solver logs",
	Long:  "verify replays the solver logs of a finished case through the same classification pipeline as watch and writes the verification artifacts.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caseDir := "."
		if len(args) == 1 {
			caseDir = args[0]
		}
		return runCase(caseParams{
			caseDir:     caseDir,
			follow:      false,
			configPath:  verifyConfigPath,
			schemaPath:  verifySchemaPath,
			logs:        verifyLogs,
			output:      verifyOutput,
			timeout:     verifyTimeout,
			targetTime:  verifyTargetTime,
			explosion:   verifyExplosion,
			stallWindow: verifyStallWindow,
			recordFile:  verifyRecordFile,
			greptime:    verifyGreptime,
			verbose:     verifyVerbose,
			flagChanged: cmd.Flags().Changed,
		})
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyConfigPath, "config", "", "Path to monitor configuration YAML (defaults are built in)")
	verifyCmd.Flags().StringVar(&verifySchemaPath, "schema", "schemas/monitor.cue", "Path to CUE schema file")
	verifyCmd.Flags().StringSliceVar(&verifyLogs, "log", nil, "Solver log file, relative to the case dir; repeat for multi-phase runs")
	verifyCmd.Flags().StringVar(&verifyOutput, "output", "", "Output directory for verification artifacts (default <case-dir>/verification)")
	verifyCmd.Flags().Float64Var(&verifyTimeout, "timeout", 0, "Wall-clock budget in seconds before a TIMEOUT verdict (0 disables)")
	verifyCmd.Flags().Float64Var(&verifyTargetTime, "target-time", 0, "Simulated end time whose attainment classifies the run stable")
	verifyCmd.Flags().Float64Var(&verifyExplosion, "explosion-threshold", 0, "Magnitude beyond which a quantity counts as diverged")
	verifyCmd.Flags().IntVar(&verifyStallWindow, "stall-window", 0, "Consecutive tiny timesteps that classify a stall")
	verifyCmd.Flags().StringVar(&verifyRecordFile, "record-file", "", "Path to export merged timestep records (JSONL)")
	verifyCmd.Flags().StringVar(&verifyGreptime, "greptime-endpoint", "", "GreptimeDB endpoint for timestep export (also GREPTIMEDB_ENDPOINT)")
	verifyCmd.Flags().BoolVarP(&verifyVerbose, "verbose", "v", false, "Enable debug logging")
}
