package mqtt

import (
	"context"
	"encoding/json"

	"github.com/golang/glog"

	"github.com/retronet/nanobridge/pkg/host"
)

// Meta is the retained announcement of a bridge.
type Meta struct {
	ID      string `json:"id"`
	Address byte   `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Server serves vendor commands for one bridge over MQTT.
type Server struct {
	Queue      *Queue
	Dispatcher *host.Dispatcher
	Meta       Meta
}

// NewServer creates a server announcing meta.
func NewServer(q *Queue, d *host.Dispatcher, meta Meta) *Server {
	return &Server{Queue: q, Dispatcher: d, Meta: meta}
}

// Name implements bridge.Part.
func (s *Server) Name() string {
	return "mqtt"
}

// Run implements bridge.Part: announce the bridge, then answer every
// command with one response until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Queue.Connect(); err != nil {
		return err
	}
	defer s.Queue.Close()

	meta, err := json.Marshal(s.Meta)
	if err != nil {
		return err
	}
	if err := s.Queue.Pub(s.Meta.ID+"/meta", true, meta); err != nil {
		return err
	}
	err = s.Queue.Sub(s.Meta.ID+"/cmd", func(_ string, payload []byte) {
		resp := s.Dispatcher.Handle(payload)
		if err := s.Queue.Pub(s.Meta.ID+"/rsp", false, resp); err != nil {
			glog.Errorf("publish response: %v", err)
		}
	})
	if err != nil {
		return err
	}
	glog.Infof("bridge %s serving", s.Meta.ID)
	<-ctx.Done()
	// withdraw the announcement
	_ = s.Queue.Pub(s.Meta.ID+"/meta", true, nil)
	return ctx.Err()
}
