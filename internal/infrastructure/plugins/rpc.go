package plugins

import (
	"context"
	"errors"
	"net/rpc"

	"maadoctor.app/cli/internal/core/detector"
)

// DetectArgs is sent to the plugin. The plugin process opens the directory
// itself; only the path crosses the process boundary.
type DetectArgs struct {
	Dir string
}

// DetectReply carries either a report, no report, or an error message.
type DetectReply struct {
	Found  bool
	Report detector.ErrorReport
	Error  string
}

// RPCServer runs inside the plugin process.
type RPCServer struct {
	Impl detector.Detector
}

func (s *RPCServer) Detect(args DetectArgs, reply *DetectReply) error {
	dir, err := detector.OpenLogDir(args.Dir)
	if err != nil {
		reply.Error = err.Error()
		return nil
	}
	report, err := s.Impl.Detect(context.Background(), dir)
	if err != nil {
		reply.Error = err.Error()
		return nil
	}
	if report != nil {
		reply.Found = true
		reply.Report = *report
	}
	return nil
}

// RPCClient is the host-side detector backed by a plugin process.
type RPCClient struct {
	client *rpc.Client
}

// Detect sends the log directory path to the plugin. When ctx ends first the
// call is abandoned and ctx.Err() returned; the process is killed by whoever
// owns it.
func (c *RPCClient) Detect(ctx context.Context, dir detector.LogDir) (*detector.ErrorReport, error) {
	var reply DetectReply
	call := c.client.Go("Plugin.Detect", DetectArgs{Dir: dir.Path()}, &reply, make(chan *rpc.Call, 1))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-call.Done:
	}
	if call.Error != nil {
		return nil, call.Error
	}
	if reply.Error != "" {
		return nil, errors.New(reply.Error)
	}
	if !reply.Found {
		return nil, nil
	}
	report := reply.Report
	return &report, nil
}
