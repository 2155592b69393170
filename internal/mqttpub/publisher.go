// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mqttpub publishes BACnet discovery results, COV notifications
// and local object changes to an MQTT broker as retained JSON messages.
package mqttpub

import (
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-cmp/cmp"

	"github.com/edgeo/drivers/bacstack/bacnet"
	"github.com/edgeo/drivers/bacstack/bacnet/tag"
)

// Conn is the part of mqtt.Client the publisher uses
type Conn interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher writes retained messages under a topic prefix. Messages
// equal to the last one sent on the same topic are skipped.
type Publisher struct {
	conn   Conn
	prefix string
	logger *slog.Logger

	mu   sync.Mutex
	last map[string]interface{}
}

// Device is the message published for a discovered device
type Device struct {
	Instance     uint32 `json:"instance"`
	Address      string `json:"address"`
	MaxAPDU      uint32 `json:"max_apdu"`
	Segmentation string `json:"segmentation"`
	VendorID     uint16 `json:"vendor_id"`
	VendorName   string `json:"vendor_name,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
}

// ClientOptions builds paho options for a mqtt:// or mqtts:// URI. The
// will marks prefix/status offline.
func ClientOptions(uri *url.URL, clientID, prefix string) (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions()
	port := uri.Port()
	switch uri.Scheme {
	case "mqtt", "tcp":
		if port == "" {
			port = "1883"
		}
		opts.AddBroker(fmt.Sprintf("tcp://%s:%s", uri.Hostname(), port))
	case "mqtts", "ssl":
		if port == "" {
			port = "8883"
		}
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: uri.Query().Get("insecure") == "true"})
		opts.AddBroker(fmt.Sprintf("ssl://%s:%s", uri.Hostname(), port))
	default:
		return nil, fmt.Errorf("mqttpub: unsupported scheme %q", uri.Scheme)
	}

	opts.SetUsername(uri.User.Username())
	password, _ := uri.User.Password()
	opts.SetPassword(password)
	opts.SetClientID(clientID)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetWill(prefix+"/status", "offline", 1, true)
	return opts, nil
}

// Dial connects to the broker at uri and announces prefix/status online
func Dial(uri *url.URL, clientID, prefix string, logger *slog.Logger) (*Publisher, error) {
	opts, err := ClientOptions(uri, clientID, prefix)
	if err != nil {
		return nil, err
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", slog.Any("error", err))
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info("mqtt connected", slog.String("broker", uri.Host))
		c.Publish(prefix+"/status", 1, true, "online")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqttpub: connect %s: %w", uri.Host, err)
	}
	return New(client, prefix, logger), nil
}

// New returns a publisher on an established connection
func New(conn Conn, prefix string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		logger: logger,
		last:   make(map[string]interface{}),
	}
}

// publish sends val as JSON on prefix/topic unless it repeats the last
// message on that topic
func (p *Publisher) publish(topic string, val interface{}) error {
	topic = p.prefix + "/" + topic
	p.mu.Lock()
	if prev, ok := p.last[topic]; ok && cmp.Equal(prev, val) {
		p.mu.Unlock()
		return nil
	}
	p.last[topic] = val
	p.mu.Unlock()

	payload, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("mqttpub: marshalling %s: %w", topic, err)
	}
	token := p.conn.Publish(topic, 0, true, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			p.logger.Warn("mqtt publish failed", slog.String("topic", topic), slog.Any("error", err))
		}
	}()
	return nil
}

// PublishDevice publishes an I-Am result on prefix/devices/<instance>
func (p *Publisher) PublishDevice(dev *bacnet.DeviceInfo) error {
	return p.publish(fmt.Sprintf("devices/%d", dev.ObjectID.Instance), Device{
		Instance:     dev.ObjectID.Instance,
		Address:      dev.Address.String(),
		MaxAPDU:      dev.MaxAPDULength,
		Segmentation: dev.Segmentation.String(),
		VendorID:     dev.VendorID,
		VendorName:   dev.VendorName,
		ModelName:    dev.ModelName,
	})
}

// PublishCOV publishes each notified value on
// prefix/devices/<instance>/<object>/<property>
func (p *Publisher) PublishCOV(deviceID uint32, oid bacnet.ObjectIdentifier, values []bacnet.PropertyValue) error {
	for _, v := range values {
		topic := fmt.Sprintf("devices/%d/%s/%s", deviceID, oid, v.PropertyID)
		if err := p.publish(topic, jsonValue(v.Value)); err != nil {
			return err
		}
	}
	return nil
}

// PublishChange publishes a local object write on
// prefix/objects/<object>/<property>. Its signature matches
// objectdb.ChangeFunc.
func (p *Publisher) PublishChange(oid bacnet.ObjectIdentifier, prop bacnet.PropertyIdentifier, values []tag.Value) {
	var val interface{}
	switch len(values) {
	case 0:
	case 1:
		val = tagValue(values[0])
	default:
		list := make([]interface{}, len(values))
		for i, v := range values {
			list[i] = tagValue(v)
		}
		val = list
	}
	if err := p.publish(fmt.Sprintf("objects/%s/%s", oid, prop), val); err != nil {
		p.logger.Warn("mqtt change not published", slog.String("object", oid.String()), slog.Any("error", err))
	}
}

func tagValue(v tag.Value) interface{} {
	if v.Tag == tag.AppObjectID {
		return bacnet.ObjectIdentifierOf(v.ObjectID).String()
	}
	return jsonValue(v.Interface())
}

// jsonValue turns decoded BACnet values into JSON friendly ones
func jsonValue(v interface{}) interface{} {
	switch x := v.(type) {
	case bacnet.ObjectIdentifier:
		return x.String()
	case tag.BitString:
		return x.String()
	case tag.Date:
		return x.String()
	case tag.Time:
		return x.String()
	case []byte:
		return hex.EncodeToString(x)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = jsonValue(e)
		}
		return out
	}
	return v
}

// Close marks prefix/status offline and disconnects
func (p *Publisher) Close() {
	token := p.conn.Publish(p.prefix+"/status", 1, true, "offline")
	token.WaitTimeout(time.Second)
	p.conn.Disconnect(250)
}
