package transcodeplugin

import (
	"fmt"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
	"github.com/mantonx/mediavault/internal/ingest/transcode"
)

// Dial launches binaryPath as a child process and returns a
// transcode.Transcoder backed by it over net/rpc, plus the underlying
// plugin.Client so the caller can Kill() it on shutdown.
func Dial(binaryPath string, log hclog.Logger) (*plugin.Client, transcode.Transcoder, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          PluginMap,
		Cmd:              exec.Command(binaryPath),
		Logger:           log,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("transcodeplugin: connect: %w", err)
	}

	raw, err := rpcClient.Dispense("transcoder")
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("transcodeplugin: dispense: %w", err)
	}

	transcoder, ok := raw.(transcode.Transcoder)
	if !ok {
		client.Kill()
		return nil, nil, fmt.Errorf("transcodeplugin: dispensed value is not a Transcoder")
	}
	return client, transcoder, nil
}
