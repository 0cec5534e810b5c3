// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tve/lorarx"
	"github.com/tve/lorarx/receiver"
)

// RxPacket is the JSON message published for each packet received.
type RxPacket struct {
	Len     int       `json:"len"`     // payload length in bytes
	Hex     string    `json:"hex"`     // payload in upper-case hex
	Payload []byte    `json:"payload"` // payload, base64 encoded by encoding/json
	Rssi    int       `json:"rssi"`    // packet RSSI in dBm
	Snr     float32   `json:"snr"`     // packet SNR in dB
	Fei     int       `json:"fei"`     // frequency error in Hz
	At      time.Time `json:"at"`      // time the packet was serviced
}

// packetSource is the part of a receiver.Handle a packet is built from.
type packetSource interface {
	Payload() ([]byte, error)
	HexView() (*receiver.HexView, error)
	Telemetry() (receiver.Telemetry, error)
}

// packetFrom copies the packet out of the handle so it can outlive the callback. A telemetry
// read failure leaves that field at zero and is returned alongside the packet.
func packetFrom(h packetSource, at time.Time) (*RxPacket, error) {
	payload, err := h.Payload()
	if err != nil {
		return nil, err
	}
	hex, err := h.HexView()
	if err != nil {
		return nil, err
	}
	tel, err := h.Telemetry()
	if err != nil {
		return nil, err
	}
	// Failed fields are zero; the packet is still built from what was read.
	return &RxPacket{
		Len:     len(payload),
		Hex:     hex.String(),
		Payload: append([]byte(nil), payload...),
		Rssi:    int(tel.Rssi),
		Snr:     tel.Snr,
		Fei:     int(tel.FrequencyError),
		At:      at,
	}, tel.Err()
}

// mq is a handle onto a MQTT broker connection.
type mq struct {
	conn  mqtt.Client // broker connection
	topic string      // topic packets are published to
}

// newMQ connects to a broker and returns a new mq object. The connection is persistent, i.e.,
// re-establishes itself if there is a disconnect.
func newMQ(conf MqttConfig, debug lorarx.LogPrintf) (*mq, error) {
	hostname, _ := os.Hostname()
	id := "lorarx-" + hostname
	if debug != nil {
		debug("Configuring MQTT with client id %s: %s:%d", id, conf.Host, conf.Port)
	}
	mqtt.ERROR = log.New(os.Stderr, "mqtt: ", 0)
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", conf.Host, conf.Port)).
		SetAutoReconnect(true).
		SetConnectRetry(true)
	opts.ClientID = id
	opts.Username = conf.User
	opts.Password = conf.Password

	mqConn := mqtt.NewClient(opts)
	if token := mqConn.Connect(); !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		if token.Error() != nil {
			return nil, token.Error()
		}
		log.Printf("MQTT broker not reachable yet, will keep retrying")
	} else {
		log.Printf("MQTT connected")
	}
	return &mq{conn: mqConn, topic: conf.Prefix + "/rx"}, nil
}

// Publish sends a packet to the broker. It does not wait for the broker to acknowledge.
func (mq *mq) Publish(pkt *RxPacket) error {
	payload, err := json.Marshal(pkt)
	if err != nil {
		return err
	}
	mq.conn.Publish(mq.topic, 1, false, payload)
	return nil
}

// run publishes packets until the context is cancelled and then disconnects.
func (mq *mq) run(ctx context.Context, pkts <-chan *RxPacket) error {
	defer mq.conn.Disconnect(250)
	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt := <-pkts:
			if err := mq.Publish(pkt); err != nil {
				log.Printf("cannot publish packet: %s", err)
			}
		}
	}
}
