package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/picokube/picokube/models"
)

var (
	getNamespace     string
	getAllNamespaces bool
)

var getCmd = &cobra.Command{
	Use:   "get (pods|replicasets|services)",
	Short: "List resources of a kind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		namespace := getNamespace
		if getAllNamespaces {
			namespace = ""
		} else if namespace == "" {
			namespace = models.DefaultNamespace
		}

		switch strings.ToLower(args[0]) {
		case "pods", "pod", "po":
			return printPods(namespace)
		case "replicasets", "replicaset", "rs":
			return printReplicaSets(namespace)
		case "services", "service", "svc":
			return printServices(namespace)
		default:
			return fmt.Errorf("unknown resource type: %s", args[0])
		}
	},
}

func printPods(namespace string) error {
	pods, err := getClient().ListPods(namespace)
	if err != nil {
		return fmt.Errorf("listing pods: %w", err)
	}
	if len(pods) == 0 {
		fmt.Println("No pods found.")
		return nil
	}
	sort.Slice(pods, func(i, j int) bool {
		if pods[i].Metadata.Namespace != pods[j].Metadata.Namespace {
			return pods[i].Metadata.Namespace < pods[j].Metadata.Namespace
		}
		return pods[i].Metadata.Name < pods[j].Metadata.Name
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAMESPACE\tNAME\tSTATUS\tIP\tAGE")
	for _, pod := range pods {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			pod.Metadata.Namespace, pod.Metadata.Name, pod.Status.Phase,
			pod.Status.PodIP, age(pod.Metadata.CreationTimestamp))
	}
	return w.Flush()
}

func printReplicaSets(namespace string) error {
	sets, err := getClient().ListReplicaSets(namespace)
	if err != nil {
		return fmt.Errorf("listing replicasets: %w", err)
	}
	if len(sets) == 0 {
		fmt.Println("No replicasets found.")
		return nil
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Metadata.Name < sets[j].Metadata.Name })

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAMESPACE\tNAME\tDESIRED\tCURRENT\tREADY\tAGE")
	for _, rs := range sets {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			rs.Metadata.Namespace, rs.Metadata.Name, rs.Spec.Replicas,
			rs.Status.Replicas, rs.Status.ReadyReplicas, age(rs.Metadata.CreationTimestamp))
	}
	return w.Flush()
}

func printServices(namespace string) error {
	services, err := getClient().ListServices(namespace)
	if err != nil {
		return fmt.Errorf("listing services: %w", err)
	}
	if len(services) == 0 {
		fmt.Println("No services found.")
		return nil
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Metadata.Name < services[j].Metadata.Name })

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAMESPACE\tNAME\tPORTS\tENDPOINTS\tAGE")
	for _, svc := range services {
		ports := make([]string, len(svc.Spec.Ports))
		for i, p := range svc.Spec.Ports {
			p = p.Effective()
			ports[i] = fmt.Sprintf("%d:%d/%s", p.Port, p.TargetPort, p.Protocol)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			svc.Metadata.Namespace, svc.Metadata.Name, strings.Join(ports, ","),
			len(svc.Status.Endpoints), age(svc.Metadata.CreationTimestamp))
	}
	return w.Flush()
}

func age(t time.Time) string {
	if t.IsZero() {
		return "<unknown>"
	}
	return time.Since(t).Round(time.Second).String()
}

func init() {
	getCmd.Flags().StringVarP(&getNamespace, "namespace", "n", "", "namespace to list from")
	getCmd.Flags().BoolVarP(&getAllNamespaces, "all-namespaces", "A", false, "list across all namespaces")
}
