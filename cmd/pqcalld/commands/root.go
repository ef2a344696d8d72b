package commands

import (
	"github.com/spf13/cobra"

	"pqcall/internal/app"
)

var (
	configPath string
	wire       *app.Wire
)

func Execute() error {
	root := &cobra.Command{
		Use:           "pqcalld",
		Short:         "Anonymous call routing daemon",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			wire, err = app.NewWire(cfg)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if wire != nil {
				wire.Close()
			}
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML)")

	root.AddCommand(serveCmd(), tokenCmd())
	return root.Execute()
}
