package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulatePrice int64
	simulateAvg   float64
	simulateStd   float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Push a synthetic observation through the pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrice <= 0 || simulateAvg <= 0 {
			return errors.New("--price and --avg must be greater than 0")
		}
		if simulateStd < 0 {
			return errors.New("--std cannot be negative")
		}
		return getApp().SimulateAlert(cmd.Context(), simulatePrice, simulateAvg, simulateStd)
	},
}

func init() {
	simulateCmd.Flags().Int64Var(&simulatePrice, "price", 0, "Listed price in coins")
	simulateCmd.Flags().Float64Var(&simulateAvg, "avg", 0, "Trailing 24h average in coins")
	simulateCmd.Flags().Float64Var(&simulateStd, "std", 0, "Trailing 24h standard deviation in coins")
}
