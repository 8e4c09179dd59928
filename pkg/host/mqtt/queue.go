// Package mqtt exposes a bridge over an MQTT broker: the daemon
// announces itself under nanobridge/<id>/meta and serves the vendor
// command/response payloads on the cmd and rsp topics.
package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// TopicPrefix roots all bridge topics.
const TopicPrefix = "nanobridge"

// Handler is the callback when a message is received.
type Handler func(topic string, payload []byte)

// Queue wraps the MQTT client used by both the daemon and host tools.
type Queue struct {
	Client paho.Client
}

// NewQueue creates a queue connecting to brokerURL as clientID.
func NewQueue(brokerURL, clientID string) *Queue {
	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true)
	return &Queue{Client: paho.NewClient(opts)}
}

// Connect establishes the broker connection.
func (q *Queue) Connect() error {
	token := q.Client.Connect()
	token.Wait()
	return token.Error()
}

// Close drops the broker connection.
func (q *Queue) Close() {
	q.Client.Disconnect(250)
}

// Pub publishes payload on the prefixed topic.
func (q *Queue) Pub(topic string, retained bool, payload []byte) error {
	token := q.Client.Publish(TopicPrefix+"/"+topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

// Sub subscribes handler to the prefixed topic.
func (q *Queue) Sub(topic string, handler Handler) error {
	token := q.Client.Subscribe(TopicPrefix+"/"+topic, 0,
		func(_ paho.Client, msg paho.Message) {
			handler(msg.Topic(), msg.Payload())
		})
	token.Wait()
	return token.Error()
}

// Unsub drops a subscription.
func (q *Queue) Unsub(topic string) {
	token := q.Client.Unsubscribe(TopicPrefix + "/" + topic)
	if !token.WaitTimeout(time.Second) {
		glog.V(2).Infof("unsubscribe %s timed out", topic)
	}
}

// ClientID derives a broker client id from a role and bridge id.
func ClientID(role, id string) string {
	return fmt.Sprintf("%s-%s-%s", TopicPrefix, role, id)
}
