package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pix-access",
	Short: "PIX access subscriptions microservice",
	Long:  "A microservice that creates PIX charges, reconciles gateway webhooks and issues access subscriptions.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
