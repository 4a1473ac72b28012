// Package transcodeplugin adapts the transcode.Transcoder port (§9) to a
// HashiCorp go-plugin net/rpc plugin, so an out-of-process ffmpeg provider
// can be swapped in without the Transcode Worker's algorithm changing. The
// default deployment runs FFmpegTranscoder in-process and never loads this
// package; it exists for the provider-swap case the port was designed for.
package transcodeplugin

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// Handshake is the magic cookie pair go-plugin uses to confirm the child
// process is actually speaking the expected protocol before dialing it.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "MEDIAVAULT_TRANSCODER_PLUGIN",
	MagicCookieValue: "mediavault",
}

// PluginMap is the single named plugin this process family dispenses.
var PluginMap = map[string]plugin.Plugin{
	"transcoder": &TranscoderPlugin{},
}

// TranscoderPlugin is the plugin.Plugin implementation for go-plugin's
// net/rpc mode: Server wraps an in-process Transcoder for serving over RPC,
// Client wraps the RPC connection behind the same Transcoder interface.
type TranscoderPlugin struct {
	Impl transcoderServer
}

func (p *TranscoderPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &RPCServer{impl: p.Impl}, nil
}

func (p *TranscoderPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}

// Serve is called from a plugin binary's main(): it blocks, serving impl
// over net/rpc until the host process disconnects.
func Serve(impl transcoderServer) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			"transcoder": &TranscoderPlugin{Impl: impl},
		},
	})
}
