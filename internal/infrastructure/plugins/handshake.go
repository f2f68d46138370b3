package plugins

import (
	"net/rpc"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"maadoctor.app/cli/internal/core/detector"
)

// PluginName is the key detector plugins are dispensed under.
const PluginName = "detector"

// Handshake is shared by the host and every detector binary. A binary built
// against a different protocol version refuses to start.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "MAADOCTOR_DETECTOR_PLUGIN",
	MagicCookieValue: "maadoctor_log_detector",
}

// PluginMap returns the plugin set for go-plugin. impl is nil on the host side.
func PluginMap(impl detector.Detector) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		PluginName: &DetectorPlugin{Impl: impl},
	}
}

// DetectorPlugin adapts a detector.Detector to go-plugin's net/rpc protocol.
type DetectorPlugin struct {
	Impl detector.Detector
}

func (p *DetectorPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &RPCServer{Impl: p.Impl}, nil
}

func (p *DetectorPlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}

// Serve runs a detector binary. It blocks until the host disconnects.
func Serve(impl detector.Detector) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins:         PluginMap(impl),
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:       "detector",
			Level:      hclog.Info,
			JSONFormat: true,
		}),
	})
}
