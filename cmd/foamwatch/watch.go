package main

import (
	"github.com/spf13/cobra"
)

var (
	watchFollow      bool
	watchAutoExit    bool
	watchConfigPath  string
	watchSchemaPath  string
	watchLogs        []string
	watchOutput      string
	watchTimeout     float64
	watchTargetTime  float64
	watchExplosion   float64
	watchStallWindow int
	watchRecordFile  string
	watchGreptime    string
	watchTUI         bool
	watchVerbose     bool
	watchSolverCmd   string
	watchSolverPID   int
)

var watchCmd = &cobra.Command{
	Use:   "watch [case-dir]",
	Short: "Monitor a live solver run until a terminal classification",
	Long:  "watch tails the solver log of a running case, classifies stability on the fly, and writes the verification artifacts. With --auto-exit a supervised solver is terminated as soon as the outcome is known.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caseDir := "."
		if len(args) == 1 {
			caseDir = args[0]
		}
		return runCase(caseParams{
			caseDir:     caseDir,
			follow:      watchFollow,
			autoExit:    watchAutoExit,
			configPath:  watchConfigPath,
			schemaPath:  watchSchemaPath,
			logs:        watchLogs,
			output:      watchOutput,
			timeout:     watchTimeout,
			targetTime:  watchTargetTime,
			explosion:   watchExplosion,
			stallWindow: watchStallWindow,
			recordFile:  watchRecordFile,
			greptime:    watchGreptime,
			useTUI:      watchTUI,
			verbose:     watchVerbose,
			solverCmd:   watchSolverCmd,
			solverPID:   watchSolverPID,
			flagChanged: cmd.Flags().Changed,
		})
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchFollow, "follow", true, "Keep tailing the log as it grows")
	watchCmd.Flags().BoolVar(&watchAutoExit, "auto-exit", false, "Terminate the supervised solver once a terminal status is reached")
	watchCmd.Flags().StringVar(&watchConfigPath, "config", "", "Path to monitor configuration YAML (defaults are built in)")
	watchCmd.Flags().StringVar(&watchSchemaPath, "schema", "schemas/monitor.cue", "Path to CUE schema file")
	watchCmd.Flags().StringSliceVar(&watchLogs, "log", nil, "Solver log file, relative to the case dir; repeat for multi-phase runs")
	watchCmd.Flags().StringVar(&watchOutput, "output", "", "Output directory for verification artifacts (default <case-dir>/verification)")
	watchCmd.Flags().Float64Var(&watchTimeout, "timeout", 0, "Wall-clock budget in seconds before a TIMEOUT verdict (0 disables)")
	watchCmd.Flags().Float64Var(&watchTargetTime, "target-time", 0, "Simulated end time whose attainment classifies the run stable")
	watchCmd.Flags().Float64Var(&watchExplosion, "explosion-threshold", 0, "Magnitude beyond which a quantity counts as diverged")
	watchCmd.Flags().IntVar(&watchStallWindow, "stall-window", 0, "Consecutive tiny timesteps that classify a stall")
	watchCmd.Flags().StringVar(&watchRecordFile, "record-file", "", "Path to export merged timestep records (JSONL)")
	watchCmd.Flags().StringVar(&watchGreptime, "greptime-endpoint", "", "GreptimeDB endpoint for timestep export (also GREPTIMEDB_ENDPOINT)")
	watchCmd.Flags().BoolVar(&watchTUI, "tui", false, "Show a live terminal dashboard")
	watchCmd.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "Enable debug logging")
	watchCmd.Flags().StringVar(&watchSolverCmd, "solver-cmd", "", "Solver command to launch and supervise")
	watchCmd.Flags().IntVar(&watchSolverPID, "solver-pid", 0, "PID of an already-running solver to supervise")
}
