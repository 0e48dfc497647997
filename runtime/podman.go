package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/davidmdm/x/xerr"
)

// LBImage is the L4 proxy image. It reads SERVICE_NAME, SERVICE_PORT, and
// BACKENDS (comma-separated host:port) from its environment and round-robins
// TCP connections across the backends.
const LBImage = "orchestrator-lb"

// Podman drives a local Podman engine by shelling out, the reference runtime
// integration.
type Podman struct {
	bin     string
	lbImage string
	log     *slog.Logger
}

func NewPodman(log *slog.Logger) *Podman {
	if log == nil {
		log = slog.Default()
	}
	return &Podman{bin: "podman", lbImage: LBImage, log: log.With("component", "podman")}
}

// timeoutFor maps an operation class to its default deadline.
func timeoutFor(class string) time.Duration {
	switch class {
	case "start":
		return StartTimeout
	case "stop":
		return StopTimeout
	default:
		return InspectTimeout
	}
}

// run executes a podman subcommand under the class's timeout.
func (p *Podman) run(ctx context.Context, class, op string, args ...string) (string, string, error) {
	tctx, cancel := context.WithTimeout(ctx, timeoutFor(class))
	defer cancel()

	cmd := exec.CommandContext(tctx, p.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out, errOut := strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String())
	if err != nil {
		if tctx.Err() == context.DeadlineExceeded {
			return out, errOut, &Error{Reason: OtherFailure, Op: op, Err: fmt.Errorf("timed out: %w", tctx.Err())}
		}
		return out, errOut, err
	}
	return out, errOut, nil
}

func (p *Podman) EnsureNetwork(ctx context.Context) (string, error) {
	if _, _, err := p.run(ctx, "inspect", "network-exists", "network", "exists", NetworkName); err == nil {
		return NetworkName, nil
	}
	_, errOut, err := p.run(ctx, "start", "network-create", "network", "create", NetworkName)
	if err != nil && !strings.Contains(errOut, "already exists") {
		return "", &Error{Reason: OtherFailure, Op: "network-create", Err: fmt.Errorf("%v: %s", err, errOut)}
	}
	p.log.Info("network ready", "network", NetworkName)
	return NetworkName, nil
}

func (p *Podman) RunContainer(ctx context.Context, cfg ContainerConfig) (RunResult, error) {
	args := []string{"run", "-d", "--name", cfg.Name, "--network", cfg.Network}
	for _, alias := range cfg.Aliases {
		args = append(args, "--network-alias", alias)
	}
	for _, kv := range sortedPairs(cfg.Env) {
		args = append(args, "-e", kv)
	}
	for _, kv := range sortedPairs(cfg.Labels) {
		args = append(args, "--label", kv)
	}
	args = append(args, cfg.Image)

	id, errOut, err := p.run(ctx, "start", "run", args...)
	if err != nil {
		return RunResult{}, &Error{Reason: classify(errOut), Op: "run", Err: fmt.Errorf("%v: %s", err, errOut)}
	}

	ip, err := p.containerIP(ctx, id, cfg.Network)
	if err != nil {
		return RunResult{}, err
	}
	p.log.Info("container started", "name", cfg.Name, "id", shortID(id), "ip", ip)
	return RunResult{ContainerID: id, PodIP: ip}, nil
}

type inspectState struct {
	Status   string `json:"Status"`
	Running  bool   `json:"Running"`
	ExitCode int    `json:"ExitCode"`
}

func (p *Podman) Inspect(ctx context.Context, containerID string) (Status, error) {
	out, errOut, err := p.run(ctx, "inspect", "inspect", "inspect", "--format", "{{json .State}}", containerID)
	if err != nil {
		if isNoSuchContainer(errOut) {
			return Status{State: StateMissing}, nil
		}
		return Status{}, &Error{Reason: OtherFailure, Op: "inspect", Err: fmt.Errorf("%v: %s", err, errOut)}
	}
	var st inspectState
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		return Status{}, &Error{Reason: OtherFailure, Op: "inspect", Err: err}
	}
	if st.Running {
		return Status{State: StateRunning}, nil
	}
	return Status{State: StateExited, ExitCode: st.ExitCode}, nil
}

func (p *Podman) StopAndRemove(ctx context.Context, idOrName string) error {
	_, errOut, err := p.run(ctx, "stop", "rm", "rm", "-f", idOrName)
	if err != nil && !isNoSuchContainer(errOut) {
		return &Error{Reason: OtherFailure, Op: "rm", Err: fmt.Errorf("%v: %s", err, errOut)}
	}
	return nil
}

func (p *Podman) StartLoadBalancer(ctx context.Context, cfg LBConfig) (string, error) {
	name := LBContainerName(cfg.Namespace, cfg.Name)

	// The proxy image serves one listener; the first port drives it, every
	// declared port is still published on the host.
	backends := make([]string, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		backends = append(backends, fmt.Sprintf("%s:%d", ep.IP, ep.Port))
	}

	args := []string{"run", "-d", "--name", name, "--network", cfg.Network, "--network-alias", cfg.Name}
	for _, port := range cfg.Ports {
		port = port.Effective()
		args = append(args, "-p", fmt.Sprintf("%d:%d", port.Port, port.Port))
	}
	args = append(args,
		"-e", fmt.Sprintf("SERVICE_NAME=%s", cfg.Name),
		"-e", fmt.Sprintf("SERVICE_PORT=%d", cfg.Ports[0].Effective().Port),
		"-e", fmt.Sprintf("BACKENDS=%s", strings.Join(backends, ",")),
		"--label", fmt.Sprintf("%s=%s", LabelService, cfg.Name),
		"--label", fmt.Sprintf("%s=%s", LabelNamespace, cfg.Namespace),
		p.lbImage,
	)

	id, errOut, err := p.run(ctx, "start", "lb-run", args...)
	if err != nil {
		return "", &Error{Reason: classify(errOut), Op: "lb-run", Err: fmt.Errorf("%v: %s", err, errOut)}
	}
	p.log.Info("load balancer started", "service", cfg.Name, "id", shortID(id), "backends", backends)
	return id, nil
}

// UpdateLoadBalancer restarts the proxy with the new endpoint set. Podman has
// no live reconfiguration channel, so restart is the fallback and the rule.
func (p *Podman) UpdateLoadBalancer(ctx context.Context, id string, cfg LBConfig) (string, error) {
	if err := p.StopAndRemove(ctx, id); err != nil {
		return "", err
	}
	return p.StartLoadBalancer(ctx, cfg)
}

func (p *Podman) StopLoadBalancer(ctx context.Context, id string) error {
	return p.StopAndRemove(ctx, id)
}

// PruneOrphans discards every container left over from a previous run. State
// is rebuilt from API traffic, not from surviving containers.
func (p *Podman) PruneOrphans(ctx context.Context) error {
	out, errOut, err := p.run(ctx, "inspect", "ps", "ps", "-a",
		"--filter", "label="+LabelNamespace, "--format", "{{.ID}}")
	if err != nil {
		return &Error{Reason: OtherFailure, Op: "ps", Err: fmt.Errorf("%v: %s", err, errOut)}
	}
	var errs []error
	for _, id := range strings.Fields(out) {
		if err := p.StopAndRemove(ctx, id); err != nil {
			errs = append(errs, err)
		} else {
			p.log.Info("removed orphaned container", "id", shortID(id))
		}
	}
	return xerr.MultiErrFrom("pruning orphaned containers", errs...)
}

func (p *Podman) containerIP(ctx context.Context, id, network string) (string, error) {
	format := fmt.Sprintf(`{{(index .NetworkSettings.Networks %q).IPAddress}}`, network)
	out, errOut, err := p.run(ctx, "inspect", "inspect-ip", "inspect", "--format", format, id)
	if err != nil {
		return "", &Error{Reason: OtherFailure, Op: "inspect-ip", Err: fmt.Errorf("%v: %s", err, errOut)}
	}
	return out, nil
}

func classify(stderr string) ErrorReason {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "manifest unknown"),
		strings.Contains(lower, "image not known"),
		strings.Contains(lower, "pull access denied"),
		strings.Contains(lower, "unable to pull"),
		strings.Contains(lower, "name unknown"):
		return ImagePullFailed
	case strings.Contains(lower, "already in use"):
		return NameConflict
	default:
		return OtherFailure
	}
}

func isNoSuchContainer(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "no such container") || strings.Contains(lower, "no container with name")
}

func sortedPairs(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
