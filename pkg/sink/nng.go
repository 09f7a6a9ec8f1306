package sink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"
	"go.nanomsg.org/mangos/v3/protocol/sub"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
	"github.com/dd0wney/cluso-epinet/pkg/snapshot"
)

// FeedMessage is one message on the live counts feed.
type FeedMessage struct {
	RunID    string         `json:"run_id"`
	Seed     int64          `json:"seed"`
	Timestep int            `json:"timestep"`
	Counts   disease.Counts `json:"counts"`
	Finished bool           `json:"finished,omitempty"`
}

// NNG publishes the counts of every record on a mangos PUB socket.
// Subscribers that are not connected miss messages; the feed is lossy.
type NNG struct {
	sock  mangos.Socket
	runID string
}

// ListenNNG opens a PUB socket listening on addr (e.g. tcp://127.0.0.1:7777).
func ListenNNG(addr, runID string) (*NNG, error) {
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, simerr.Export("nng-listen").Wrap(err)
	}
	if err := sock.SetOption(mangos.OptionSendDeadline, time.Second); err != nil {
		sock.Close()
		return nil, simerr.Export("nng-listen").Wrap(err)
	}
	if err := sock.Listen(addr); err != nil {
		sock.Close()
		return nil, simerr.Config("nng-listen").Field("addr").Context(addr).Wrap(err)
	}
	return &NNG{sock: sock, runID: runID}, nil
}

func (n *NNG) Name() string { return "nng" }

// Emit publishes rec.Counts.
func (n *NNG) Emit(_ context.Context, seed int64, t int, rec snapshot.Record) error {
	return n.send(FeedMessage{RunID: n.runID, Seed: seed, Timestep: t, Counts: rec.Counts})
}

// FinishSeed publishes an end-of-seed marker.
func (n *NNG) FinishSeed(_ context.Context, seed int64) error {
	return n.send(FeedMessage{RunID: n.runID, Seed: seed, Timestep: simerr.Unset, Finished: true})
}

func (n *NNG) send(msg FeedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return simerr.Export("nng").Seed(msg.Seed).Wrap(err)
	}
	if err := n.sock.Send(data); err != nil {
		return simerr.Export("nng").Seed(msg.Seed).Timestep(msg.Timestep).Wrap(err)
	}
	return nil
}

// Close closes the socket.
func (n *NNG) Close() error {
	return n.sock.Close()
}

// Watch dials a feed at addr, retrying in the background until the
// publisher is up, and calls fn for every message until ctx ends
// or fn returns an error.
func Watch(ctx context.Context, addr string, fn func(FeedMessage) error) error {
	sock, err := sub.NewSocket()
	if err != nil {
		return err
	}
	defer sock.Close()

	if err := sock.SetOption(mangos.OptionSubscribe, []byte{}); err != nil {
		return err
	}
	if err := sock.SetOption(mangos.OptionRecvDeadline, 200*time.Millisecond); err != nil {
		return err
	}
	if err := sock.DialOptions(addr, map[string]interface{}{mangos.OptionDialAsynch: true}); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		data, err := sock.Recv()
		if errors.Is(err, mangos.ErrRecvTimeout) {
			continue
		}
		if err != nil {
			return err
		}
		var msg FeedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}
