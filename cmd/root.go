package cmd

import (
	"github.com/spf13/cobra"

	"github.com/picokube/picokube/client"
)

var (
	apiHost string
	apiPort string
)

var rootCmd = &cobra.Command{
	Use:   "picokube",
	Short: "picokube is a single-host container orchestrator",
	Long: `picokube runs a Kubernetes-style control plane for a single host:
declarative Pods, ReplicaSets, and Services reconciled against a local
Podman engine.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func getClient() *client.Client {
	return client.NewClient(client.Config{Host: apiHost, Port: apiPort})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiHost, "api-host", "localhost", "API server host")
	rootCmd.PersistentFlags().StringVar(&apiPort, "api-port", "3000", "API server port")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
}
