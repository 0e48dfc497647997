package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/picokube/picokube/models"
)

var applyFile string

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply YAML resource definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(applyFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", applyFile, err)
		}

		dec := yaml.NewDecoder(bytes.NewReader(data))
		for {
			var raw yaml.Node
			if err := dec.Decode(&raw); err != nil {
				if err == io.EOF {
					break
				}
				return fmt.Errorf("parsing YAML: %w", err)
			}
			if err := applyDocument(&raw); err != nil {
				return err
			}
		}
		return nil
	},
}

// applyDocument creates the resource, falling back to update when it exists.
func applyDocument(doc *yaml.Node) error {
	var head struct {
		Kind string `yaml:"kind"`
	}
	if err := doc.Decode(&head); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	c := getClient()
	switch head.Kind {
	case models.KindPod:
		var pod models.Pod
		if err := doc.Decode(&pod); err != nil {
			return fmt.Errorf("parsing Pod: %w", err)
		}
		created, err := c.CreatePod(&pod)
		if models.IsAlreadyExists(err) {
			created, err = c.UpdatePod(&pod)
		}
		if err != nil {
			return fmt.Errorf("applying pod %q: %w", pod.Metadata.Name, err)
		}
		fmt.Printf("✅ Pod '%s' applied\n", created.Metadata.Name)
	case models.KindService:
		var svc models.Service
		if err := doc.Decode(&svc); err != nil {
			return fmt.Errorf("parsing Service: %w", err)
		}
		created, err := c.CreateService(&svc)
		if models.IsAlreadyExists(err) {
			created, err = c.UpdateService(&svc)
		}
		if err != nil {
			return fmt.Errorf("applying service %q: %w", svc.Metadata.Name, err)
		}
		fmt.Printf("✅ Service '%s' applied\n", created.Metadata.Name)
	case models.KindReplicaSet:
		var rs models.ReplicaSet
		if err := doc.Decode(&rs); err != nil {
			return fmt.Errorf("parsing ReplicaSet: %w", err)
		}
		created, err := c.CreateReplicaSet(&rs)
		if models.IsAlreadyExists(err) {
			created, err = c.UpdateReplicaSet(&rs)
		}
		if err != nil {
			return fmt.Errorf("applying replicaset %q: %w", rs.Metadata.Name, err)
		}
		fmt.Printf("✅ ReplicaSet '%s' applied\n", created.Metadata.Name)
	default:
		return fmt.Errorf("unsupported resource kind: %q", head.Kind)
	}
	return nil
}

func init() {
	applyCmd.Flags().StringVarP(&applyFile, "filename", "f", "", "YAML file containing the resource definitions")
	_ = applyCmd.MarkFlagRequired("filename")
}
