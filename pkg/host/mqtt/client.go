package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrNoResponse is reported when a bridge does not answer a command in
// time.
var ErrNoResponse = errors.New("mqtt: no response from bridge")

// DefaultDiscoverTimeout bounds a Discover sweep.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// Client drives one bridge from the host side.
type Client struct {
	Queue   *Queue
	ID      string
	Timeout time.Duration
}

// NewClient creates a client for the bridge id.
func NewClient(q *Queue, id string) *Client {
	return &Client{Queue: q, ID: id, Timeout: 2 * time.Second}
}

// Discover sweeps the retained bridge announcements.
func Discover(q *Queue, timeout time.Duration) ([]Meta, error) {
	if timeout == 0 {
		timeout = DefaultDiscoverTimeout
	}
	resCh := make(chan Meta, 16)
	err := q.Sub("+/meta", func(topic string, payload []byte) {
		if len(payload) == 0 {
			return
		}
		var meta Meta
		if err := json.Unmarshal(payload, &meta); err != nil {
			return
		}
		if meta.ID == "" {
			items := strings.Split(topic, "/")
			if len(items) >= 2 {
				meta.ID = items[len(items)-2]
			}
		}
		select {
		case resCh <- meta:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer q.Unsub("+/meta")

	var res []Meta
	expire := time.After(timeout)
	for {
		select {
		case meta := <-resCh:
			res = append(res, meta)
		case <-expire:
			return res, nil
		}
	}
}

// Do sends one command and waits for the bridge response.
func (c *Client) Do(cmd []byte) ([]byte, error) {
	respCh := make(chan []byte, 1)
	err := c.Queue.Sub(c.ID+"/rsp", func(_ string, payload []byte) {
		resp := make([]byte, len(payload))
		copy(resp, payload)
		select {
		case respCh <- resp:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer c.Queue.Unsub(c.ID + "/rsp")

	if err := c.Queue.Pub(c.ID+"/cmd", false, cmd); err != nil {
		return nil, err
	}
	select {
	case resp := <-respCh:
		return resp, nil
	case <-time.After(c.Timeout):
		return nil, ErrNoResponse
	}
}
