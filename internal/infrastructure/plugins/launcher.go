package plugins

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"maadoctor.app/cli/internal/core/detector"
	"maadoctor.app/cli/internal/infrastructure/logging"
)

const defaultStartTimeout = 10 * time.Second

// Launcher starts detector binaries and keeps track of their processes.
type Launcher struct {
	logger       hclog.Logger
	startTimeout time.Duration

	mu      sync.Mutex
	clients map[*plugin.Client]struct{}
}

func NewLauncher(logger hclog.Logger) *Launcher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Launcher{
		logger:       logger.Named("plugins"),
		startTimeout: defaultStartTimeout,
		clients:      make(map[*plugin.Client]struct{}),
	}
}

// Launch starts the binary at path and returns a detector talking to it. The
// returned detector is an io.Closer that kills the process.
func (l *Launcher) Launch(ctx context.Context, path string) (detector.Detector, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("detector plugin %s: %w", path, err)
	}
	if info.IsDir() || info.Mode()&0o111 == 0 {
		return nil, fmt.Errorf("detector plugin %s is not an executable file", path)
	}

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          PluginMap(nil),
		Cmd:              exec.Command(path),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
		Logger:           logging.PluginLogger(l.logger),
		StartTimeout:     l.startTimeout,
	})

	d, err := l.dispense(ctx, client)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("detector plugin %s: %w", path, err)
	}

	l.mu.Lock()
	l.clients[client] = struct{}{}
	l.mu.Unlock()

	l.logger.Debug("started detector plugin", "path", path)
	return &processDetector{Detector: d, client: client, launcher: l}, nil
}

func (l *Launcher) dispense(ctx context.Context, client *plugin.Client) (detector.Detector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rpcClient, err := client.Client()
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	raw, err := rpcClient.Dispense(PluginName)
	if err != nil {
		return nil, fmt.Errorf("failed to dispense: %w", err)
	}
	d, ok := raw.(detector.Detector)
	if !ok {
		return nil, fmt.Errorf("plugin does not implement the detector interface")
	}
	return d, nil
}

// Close kills every process still running.
func (l *Launcher) Close() error {
	l.mu.Lock()
	clients := l.clients
	l.clients = make(map[*plugin.Client]struct{})
	l.mu.Unlock()

	for client := range clients {
		client.Kill()
	}
	return nil
}

func (l *Launcher) release(client *plugin.Client) {
	l.mu.Lock()
	delete(l.clients, client)
	l.mu.Unlock()
	client.Kill()
}

type processDetector struct {
	detector.Detector
	client   *plugin.Client
	launcher *Launcher
	once     sync.Once
}

func (p *processDetector) Close() error {
	p.once.Do(func() { p.launcher.release(p.client) })
	return nil
}
