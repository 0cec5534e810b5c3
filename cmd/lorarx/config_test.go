// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tve/lorarx"
	"github.com/tve/lorarx/receiver"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "/dev/spidev0.0", c.Spi.Dev)
	assert.EqualValues(t, 500000, c.Spi.SpeedHz)
	assert.Equal(t, "GPIO27", c.Edge.Pin)
	assert.Equal(t, modePoll, c.Edge.Mode)
	assert.Zero(t, c.Edge.Timeout)
	assert.False(t, c.Edge.ServiceOnTimeout)
	assert.Empty(t, c.Mqtt.Host)
	assert.Equal(t, 1883, c.Mqtt.Port)
	assert.Equal(t, receiver.DefaultConfig(), c.RadioConfig())
}

func TestLoadFlags(t *testing.T) {
	c, err := Load([]string{
		"--radio.freq=868100000", "--radio.sf=12", "--radio.bw=250000", "--radio.lna-gain=0",
		"--edge.mode=interrupt", "--edge.timeout=2s", "--edge.service-on-timeout",
		"--mqtt.host=broker", "--log.debug",
	})
	require.NoError(t, err)
	rc := c.RadioConfig()
	assert.EqualValues(t, 868100000, rc.Frequency)
	assert.Equal(t, lorarx.SF12, rc.SpreadingFactor)
	assert.Equal(t, lorarx.BW250, rc.Bandwidth)
	assert.Equal(t, lorarx.LnaGainAuto, rc.LnaGain)
	assert.Equal(t, modeInterrupt, c.Edge.Mode)
	assert.Equal(t, receiver.PollOpts{Timeout: 2 * time.Second, ServiceOnTimeout: true}, c.PollOpts())
	assert.Equal(t, "broker", c.Mqtt.Host)
	assert.True(t, c.Log.Debug)
}

func TestLoadImplicitHeader(t *testing.T) {
	c, err := Load([]string{"--radio.sf=6", "--radio.implicit", "--radio.length=12",
		"--radio.crc", "--radio.cr=4"})
	require.NoError(t, err)
	assert.Equal(t, lorarx.Header{Implicit: true, Length: 12, CRC: true, CodingRate: lorarx.CR4_8},
		c.RadioConfig().Header)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("LORARX_RADIO_SF", "10")
	t.Setenv("LORARX_EDGE_SERVICE_ON_TIMEOUT", "true")
	t.Setenv("LORARX_MQTT_PREFIX", "radio/test")
	c, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, lorarx.SF10, c.RadioConfig().SpreadingFactor)
	assert.True(t, c.Edge.ServiceOnTimeout)
	assert.Equal(t, "radio/test", c.Mqtt.Prefix)

	c, err = Load([]string{"--radio.sf=11"})
	require.NoError(t, err)
	assert.Equal(t, lorarx.SF11, c.RadioConfig().SpreadingFactor, "flags take precedence")
}

func TestLoadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "lorarx.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
radio:
  freq: 433775000
  sync: 52
edge:
  pin: GPIO22
  timeout: 500ms
mqtt:
  host: broker.local
  prefix: lora/gw1
`), 0o644))

	c, err := Load([]string{"--config", file})
	require.NoError(t, err)
	assert.EqualValues(t, 433775000, c.Radio.Frequency)
	assert.EqualValues(t, 0x34, c.Radio.SyncWord)
	assert.Equal(t, lorarx.SF9, c.RadioConfig().SpreadingFactor, "defaults fill the rest")
	assert.Equal(t, "GPIO22", c.Edge.Pin)
	assert.Equal(t, 500*time.Millisecond, c.Edge.Timeout)
	assert.Equal(t, "broker.local", c.Mqtt.Host)
	assert.Equal(t, "lora/gw1", c.Mqtt.Prefix)

	_, err = Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.ErrorContains(t, err, "cannot read config")
}

var invalidFlags = map[string]struct {
	args []string
	msg  string
}{
	"mode":         {[]string{"--edge.mode=irq"}, "edge.mode"},
	"bandwidth":    {[]string{"--radio.bw=100000"}, "config: radio:"},
	"sf":           {[]string{"--radio.sf=13"}, "config: radio:"},
	"sf6 explicit": {[]string{"--radio.sf=6"}, "config: radio:"},
	"frequency":    {[]string{"--radio.freq=2400000000"}, "config: radio:"},
	"speed":        {[]string{"--spi.speed=0"}, "spi.speed"},
	"mux value":    {[]string{"--spi.mux-value=2"}, "spi.mux-value"},
	"pin":          {[]string{"--edge.pin="}, "edge.pin"},
	"prefix":       {[]string{"--mqtt.host=broker", "--mqtt.prefix="}, "mqtt.prefix"},
}

func TestLoadInvalid(t *testing.T) {
	for name, tc := range invalidFlags {
		t.Run(name, func(t *testing.T) {
			_, err := Load(tc.args)
			assert.ErrorContains(t, err, tc.msg)
		})
	}
}

func TestLoadHelp(t *testing.T) {
	_, err := Load([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}

func TestYAMLHidesPassword(t *testing.T) {
	c, err := Load([]string{"--mqtt.password=hunter2", "--mqtt.user=gw"})
	require.NoError(t, err)
	out, err := c.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "user: gw")
	assert.Contains(t, string(out), "sf: 9")
	assert.NotContains(t, string(out), "hunter2")
}

func TestEmbdPinKey(t *testing.T) {
	assert.Equal(t, 27, embdPinKey("GPIO27"))
	assert.Equal(t, 4, embdPinKey("4"))
	assert.Equal(t, "P1_13", embdPinKey("P1_13"))
}
