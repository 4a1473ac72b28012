package transcodeplugin

import (
	"context"
	"net/rpc"

	"github.com/mantonx/mediavault/internal/ingest/transcode"
	"github.com/mantonx/mediavault/internal/ingest/types"
)

// transcoderServer is what a plugin binary implements; it is the same
// shape as transcode.Transcoder but without a context parameter, since
// net/rpc's wire format carries plain args/reply pairs.
type transcoderServer interface {
	Probe(path string) (types.MediaProbe, error)
	Transcode(source, dest string, params transcode.Params) (types.TranscodeOutcome, error)
}

// TranscodeArgs bundles Transcode's three parameters for the single-value
// net/rpc call convention.
type TranscodeArgs struct {
	Source string
	Dest   string
	Params transcode.Params
}

// RPCServer is dispensed on the plugin side: it receives net/rpc calls and
// forwards them to the real implementation.
type RPCServer struct {
	impl transcoderServer
}

func (s *RPCServer) Probe(path string, reply *types.MediaProbe) error {
	probe, err := s.impl.Probe(path)
	if err != nil {
		return err
	}
	*reply = probe
	return nil
}

func (s *RPCServer) Transcode(args TranscodeArgs, reply *types.TranscodeOutcome) error {
	outcome, err := s.impl.Transcode(args.Source, args.Dest, args.Params)
	if err != nil {
		return err
	}
	*reply = outcome
	return nil
}

// RPCClient is dispensed on the host side. It implements transcode.Transcoder
// so the host's Transcode Worker never knows whether it's talking to an
// in-process FFmpegTranscoder or an out-of-process plugin.
type RPCClient struct {
	client *rpc.Client
}

func (c *RPCClient) Probe(_ context.Context, path string) (types.MediaProbe, error) {
	var reply types.MediaProbe
	err := c.client.Call("Plugin.Probe", path, &reply)
	return reply, err
}

func (c *RPCClient) Transcode(_ context.Context, source, dest string, params transcode.Params) (types.TranscodeOutcome, error) {
	var reply types.TranscodeOutcome
	err := c.client.Call("Plugin.Transcode", TranscodeArgs{Source: source, Dest: dest, Params: params}, &reply)
	return reply, err
}

var _ transcode.Transcoder = (*RPCClient)(nil)
