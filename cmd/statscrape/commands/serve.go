package commands

import (
	"github.com/spf13/cobra"
)

var servePort int

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Override [web] port.")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the relay pool manager and the web API until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.WebConf.Port = servePort
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		return a.Serve(cmd.Context())
	},
}
