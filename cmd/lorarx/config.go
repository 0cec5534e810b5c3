// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/tve/lorarx"
	"github.com/tve/lorarx/receiver"
)

// Config is the gateway's configuration. It is assembled from defaults, an optional YAML file,
// LORARX_* environment variables, and command line flags, in increasing order of precedence.
type Config struct {
	Spi   SpiConfig   `mapstructure:"spi" yaml:"spi"`
	Radio RadioConfig `mapstructure:"radio" yaml:"radio"`
	Edge  EdgeConfig  `mapstructure:"edge" yaml:"edge"`
	Mqtt  MqttConfig  `mapstructure:"mqtt" yaml:"mqtt"`
	Log   LogConfig   `mapstructure:"log" yaml:"log"`

	PrintConfig bool `mapstructure:"print-config" yaml:"-"`
}

// SpiConfig selects the SPI device the radio is attached to.
type SpiConfig struct {
	Dev      string `mapstructure:"dev" yaml:"dev"`             // e.g. /dev/spidev0.0
	SpeedHz  int64  `mapstructure:"speed" yaml:"speed"`         // clock rate
	MuxPin   string `mapstructure:"mux-pin" yaml:"mux-pin"`     // chip select mux pin, empty if none
	MuxValue int    `mapstructure:"mux-value" yaml:"mux-value"` // mux pin level selecting the radio
}

// RadioConfig holds the LoRa receive parameters.
type RadioConfig struct {
	Frequency       uint32 `mapstructure:"freq" yaml:"freq"`           // Hz
	Bandwidth       uint32 `mapstructure:"bw" yaml:"bw"`               // Hz
	SpreadingFactor uint8  `mapstructure:"sf" yaml:"sf"`               // 6..12
	SyncWord        uint8  `mapstructure:"sync" yaml:"sync"`           // 0x12 private, 0x34 LoRaWAN
	Preamble        uint16 `mapstructure:"preamble" yaml:"preamble"`   // symbols
	LnaGain         uint8  `mapstructure:"lna-gain" yaml:"lna-gain"`   // 0 for AGC, 1 (max) to 6
	LnaBoost        bool   `mapstructure:"lna-boost" yaml:"lna-boost"` // HF port only
	Implicit        bool   `mapstructure:"implicit" yaml:"implicit"`   // implicit header mode
	Length          uint8  `mapstructure:"length" yaml:"length"`       // payload length, implicit only
	CRC             bool   `mapstructure:"crc" yaml:"crc"`             // payload CRC, implicit only
	CodingRate      uint8  `mapstructure:"cr" yaml:"cr"`               // 1 (4/5) to 4 (4/8), implicit only
}

// EdgeConfig selects how the radio's DIO0 interrupt line is observed.
type EdgeConfig struct {
	Pin              string        `mapstructure:"pin" yaml:"pin"`   // e.g. GPIO27
	Mode             string        `mapstructure:"mode" yaml:"mode"` // poll or interrupt
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ServiceOnTimeout bool          `mapstructure:"service-on-timeout" yaml:"service-on-timeout"`
	Realtime         bool          `mapstructure:"realtime" yaml:"realtime"`
}

// MqttConfig describes the broker packets are published to. No host disables publishing.
type MqttConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// LogConfig controls where the log goes. With no file it goes to stderr.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max-size" yaml:"max-size"`
	MaxBackups int    `mapstructure:"max-backups" yaml:"max-backups"`
	MaxAgeDays int    `mapstructure:"max-age" yaml:"max-age"`
	Debug      bool   `mapstructure:"debug" yaml:"debug"`
}

const (
	modePoll      = "poll"
	modeInterrupt = "interrupt"
)

// defineFlags declares every setting as a flag whose name is the viper key. The flag defaults
// are the configuration defaults.
func defineFlags(fs *pflag.FlagSet) {
	def := receiver.DefaultConfig()
	fs.String("config", "", "YAML configuration file")
	fs.Bool("print-config", false, "print the effective configuration and exit")

	fs.String("spi.dev", "/dev/spidev0.0", "SPI device")
	fs.Int64("spi.speed", 500000, "SPI clock in Hz")
	fs.String("spi.mux-pin", "", "chip select mux pin name")
	fs.Int("spi.mux-value", 0, "mux pin level (0 or 1) selecting the radio")

	fs.Uint32("radio.freq", def.Frequency, "center frequency in Hz")
	fs.Uint32("radio.bw", uint32(def.Bandwidth), "bandwidth in Hz")
	fs.Uint8("radio.sf", uint8(def.SpreadingFactor), "spreading factor")
	fs.Uint8("radio.sync", def.SyncWord, "sync word")
	fs.Uint16("radio.preamble", def.PreambleLength, "preamble length in symbols")
	fs.Uint8("radio.lna-gain", uint8(def.LnaGain), "LNA gain, 0 for AGC, 1 (max) to 6")
	fs.Bool("radio.lna-boost", def.LnaBoost, "LNA boost on the HF port")
	fs.Bool("radio.implicit", false, "implicit header mode")
	fs.Uint8("radio.length", 0, "payload length in implicit header mode")
	fs.Bool("radio.crc", false, "payload CRC in implicit header mode")
	fs.Uint8("radio.cr", uint8(lorarx.CR4_5), "coding rate in implicit header mode, 1 (4/5) to 4 (4/8)")

	fs.String("edge.pin", "GPIO27", "DIO0 interrupt pin name")
	fs.String("edge.mode", modePoll, "how DIO0 is observed: poll or interrupt")
	fs.Duration("edge.timeout", 0, "poll wait timeout, 0 waits forever")
	fs.Bool("edge.service-on-timeout", false, "service the radio whenever a poll wait times out")
	fs.Bool("edge.realtime", false, "poll on a realtime priority thread")

	fs.String("mqtt.host", "", "MQTT broker host, empty disables publishing")
	fs.Int("mqtt.port", 1883, "MQTT broker port")
	fs.String("mqtt.user", "", "MQTT user")
	fs.String("mqtt.password", "", "MQTT password")
	fs.String("mqtt.prefix", "radio/lora", "MQTT topic prefix, packets go to <prefix>/rx")

	fs.String("log.file", "", "log file, empty logs to stderr")
	fs.Int("log.max-size", 10, "log file size in MB before it is rotated")
	fs.Int("log.max-backups", 5, "number of rotated log files to keep")
	fs.Int("log.max-age", 30, "days to keep rotated log files")
	fs.Bool("log.debug", false, "enable driver debug output")
}

// Load parses the command line and assembles the configuration.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("lorarx", pflag.ContinueOnError)
	defineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix("LORARX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("cannot read config %s: %w", file, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the settings that the radio and the edge source can't check themselves.
func (c *Config) Validate() error {
	if c.Spi.Dev == "" {
		return errors.New("config: spi.dev is required")
	}
	if c.Spi.SpeedHz <= 0 {
		return fmt.Errorf("config: spi.speed %d must be positive", c.Spi.SpeedHz)
	}
	if c.Spi.MuxValue < 0 || c.Spi.MuxValue > 1 {
		return fmt.Errorf("config: spi.mux-value %d must be 0 or 1", c.Spi.MuxValue)
	}
	if err := c.RadioConfig().Validate(); err != nil {
		return fmt.Errorf("config: radio: %w", err)
	}
	if c.Edge.Pin == "" {
		return errors.New("config: edge.pin is required")
	}
	if c.Edge.Mode != modePoll && c.Edge.Mode != modeInterrupt {
		return fmt.Errorf("config: edge.mode %q must be %s or %s", c.Edge.Mode, modePoll, modeInterrupt)
	}
	if c.Mqtt.Host != "" && c.Mqtt.Prefix == "" {
		return errors.New("config: mqtt.prefix is required when publishing")
	}
	return nil
}

// RadioConfig converts the radio settings for receiver.Configure.
func (c *Config) RadioConfig() receiver.RadioConfig {
	r := c.Radio
	rc := receiver.RadioConfig{
		Frequency:       r.Frequency,
		Bandwidth:       lorarx.Bandwidth(r.Bandwidth),
		SpreadingFactor: lorarx.SpreadingFactor(r.SpreadingFactor),
		SyncWord:        r.SyncWord,
		PreambleLength:  r.Preamble,
		LnaGain:         lorarx.LnaGain(r.LnaGain),
		LnaBoost:        r.LnaBoost,
	}
	if r.Implicit {
		rc.Header = lorarx.Header{Implicit: true, Length: r.Length, CRC: r.CRC,
			CodingRate: lorarx.CodingRate(r.CodingRate)}
	}
	return rc
}

// PollOpts converts the edge settings for receiver.NewPoller.
func (c *Config) PollOpts() receiver.PollOpts {
	return receiver.PollOpts{
		Timeout:          c.Edge.Timeout,
		ServiceOnTimeout: c.Edge.ServiceOnTimeout,
		Realtime:         c.Edge.Realtime,
	}
}

// YAML renders the configuration, minus secrets, in the config file format.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// embdPinKey converts a pin name like GPIO27 into the pin number embd expects. Other names are
// passed through for embd to resolve.
func embdPinKey(name string) interface{} {
	if n, err := strconv.Atoi(strings.TrimPrefix(name, "GPIO")); err == nil {
		return n
	}
	return name
}
