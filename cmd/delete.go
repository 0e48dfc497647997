package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/picokube/picokube/models"
)

var deleteNamespace string

var deleteCmd = &cobra.Command{
	Use:   "delete (pod|replicaset|service) NAME",
	Short: "Delete a resource",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, name := args[0], args[1]
		namespace := deleteNamespace
		if namespace == "" {
			namespace = models.DefaultNamespace
		}

		c := getClient()
		var err error
		switch strings.ToLower(kind) {
		case "pod", "pods", "po":
			err = c.DeletePod(namespace, name)
		case "replicaset", "replicasets", "rs":
			err = c.DeleteReplicaSet(namespace, name)
		case "service", "services", "svc":
			err = c.DeleteService(namespace, name)
		default:
			return fmt.Errorf("unknown resource type: %s", kind)
		}
		if err != nil {
			return fmt.Errorf("❌ failed to delete %s: %w", kind, err)
		}
		fmt.Printf("✅ %s '%s' deleted\n", kind, name)
		return nil
	},
}

func init() {
	deleteCmd.Flags().StringVarP(&deleteNamespace, "namespace", "n", "", "namespace of the resource")
}
