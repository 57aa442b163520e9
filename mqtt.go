// RTLWMBUS - An rtl-sdr receiver for Wireless M-Bus meters in the 868MHz SRD band.
// Copyright (C) 2015 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/bemasher/rtlwmbus/protocol"
)

const mqttTimeout = 5 * time.Second

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTEncoder publishes each message as json to <prefix>/<mode>/<serial>.
type MQTTEncoder struct {
	client publisher
	prefix string

	conn mqtt.Client
}

func NewMQTTEncoder(broker, prefix string) (*MQTTEncoder, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("rtlwmbus-" + uuid.NewString())

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.WithField("Broker", broker).Info("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.WithError(err).Warn("mqtt connection lost")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(mqttTimeout) && token.Error() != nil {
		return nil, errors.Wrap(token.Error(), "mqtt connect")
	}

	return &MQTTEncoder{client, prefix, client}, nil
}

func (me *MQTTEncoder) Close() {
	if me.conn != nil {
		me.conn.Disconnect(250)
	}
}

func (me *MQTTEncoder) Topic(msg protocol.Message) string {
	return fmt.Sprintf("%s/%s/%08X", me.prefix, msg.MsgType(), msg.MeterID())
}

func (me *MQTTEncoder) Encode(v interface{}) error {
	logMsg, ok := v.(protocol.LogMessage)
	if !ok {
		return errors.Errorf("mqtt: unsupported message %T", v)
	}

	payload, err := json.Marshal(logMsg.Message)
	if err != nil {
		return errors.Wrap(err, "mqtt payload")
	}

	token := me.client.Publish(me.Topic(logMsg.Message), 0, false, payload)
	if !token.WaitTimeout(mqttTimeout) {
		// Delivery continues in the background.
		log.Warn("mqtt publish timed out")
		return nil
	}

	return errors.Wrap(token.Error(), "mqtt publish")
}
