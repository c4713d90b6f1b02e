// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"kilnctl/pkg/eventbus"
)

const (
	SensorSimulated = "simulated"
	SensorMAX31855  = "max31855"
	SensorModbus    = "modbus"

	SSRNone     = "none"
	SSRGPIO     = "gpio"
	SSRPhidgets = "phidgets"
)

type SimConfig struct {
	AmbientC float64 `json:"ambient_c"`
	NoiseC   float64 `json:"noise_c"`
	Seed     uint64  `json:"seed"`
}

type SensorConfig struct {
	Mode             string `json:"mode"`
	SampleIntervalMs int    `json:"sample_interval_ms"`

	// max31855
	SPIDevice1 string `json:"spi_device_1"`
	SPIDevice2 string `json:"spi_device_2"`
	SPISpeedHz uint32 `json:"spi_speed_hz"`

	// modbus thermocouple module, register names from the YAML map
	ModbusMap     string `json:"modbus_map"`
	ModbusTemp1   string `json:"modbus_temp_1"`
	ModbusStatus1 string `json:"modbus_status_1"`
	ModbusTemp2   string `json:"modbus_temp_2"`
	ModbusStatus2 string `json:"modbus_status_2"`

	Sim SimConfig `json:"sim"`
}

func (s SensorConfig) SampleInterval() time.Duration {
	return time.Duration(s.SampleIntervalMs) * time.Millisecond
}

type PIDConfig struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

type SafetyConfig struct {
	MaxTempC        float64 `json:"max_temp_c"`
	MaxHeatingHours float64 `json:"max_heating_hours"`
}

func (s SafetyConfig) MaxHeatingTime() time.Duration {
	return time.Duration(s.MaxHeatingHours * float64(time.Hour))
}

type ScheduleConfig struct {
	PresetsFile string  `json:"presets_file"`
	ToleranceC  float64 `json:"tolerance_c"`
}

type TelemetryConfig struct {
	Capacity        int `json:"capacity"`
	IntervalSeconds int `json:"interval_seconds"`
	StatusHistory   int `json:"status_history"`
}

type SSRConfig struct {
	Backend       string  `json:"backend"`
	WindowSeconds float64 `json:"window_seconds"`

	// gpio
	GPIOChip  string `json:"gpio_chip"`
	GPIOLine  int    `json:"gpio_line"`
	ActiveLow bool   `json:"active_low"`

	// phidgets digital output
	PhidgetsAddr    string `json:"phidgets_addr"`
	PhidgetsChannel int    `json:"phidgets_channel"`
	PhidgetsHubPort int    `json:"phidgets_hubport"`
}

func (s SSRConfig) Window() time.Duration {
	return time.Duration(s.WindowSeconds * float64(time.Second))
}

type MQTTConfig struct {
	Broker          string `json:"broker"`
	ClientID        string `json:"client_id"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	TopicPrefix     string `json:"topic_prefix"`
	IntervalSeconds int    `json:"interval_seconds"`
}

type DataLoggerConfig struct {
	EmonCMSAddr     string `json:"emoncms_addr"`
	EmonCMSApiKey   string `json:"emoncms_apikey"`
	Node            string `json:"node"`
	IntervalSeconds int    `json:"interval_seconds"`
}

type Config struct {
	HTTPAddr   string           `json:"http_addr"`
	Sensor     SensorConfig     `json:"sensor"`
	PID        PIDConfig        `json:"pid"`
	Safety     SafetyConfig     `json:"safety"`
	Schedule   ScheduleConfig   `json:"schedule"`
	Telemetry  TelemetryConfig  `json:"telemetry"`
	SSR        SSRConfig        `json:"ssr"`
	MQTT       MQTTConfig       `json:"mqtt"`
	DataLogger DataLoggerConfig `json:"datalogger"`

	// not loaded from file, but added here to
	// pass to all services alongside config
	EventBus *eventbus.Bus `json:"-"`
}

// LoadFile loads the config or exits, for use at startup.
func LoadFile(path string) *Config {
	c, err := Load(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return c
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var c Config
	if err := json.NewDecoder(f).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default is the config used when every field is left empty.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

func (c *Config) ApplyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.Sensor.Mode == "" {
		c.Sensor.Mode = SensorSimulated
	}
	if c.Sensor.SampleIntervalMs == 0 {
		c.Sensor.SampleIntervalMs = 250
	}
	if c.Sensor.SPIDevice1 == "" {
		c.Sensor.SPIDevice1 = "/dev/spidev0.0"
	}
	if c.Sensor.SPIDevice2 == "" {
		c.Sensor.SPIDevice2 = "/dev/spidev0.1"
	}
	if c.Sensor.SPISpeedHz == 0 {
		c.Sensor.SPISpeedHz = 1_000_000
	}
	if c.Sensor.Sim.AmbientC == 0 {
		c.Sensor.Sim.AmbientC = 22
	}
	if c.Sensor.Sim.NoiseC == 0 {
		c.Sensor.Sim.NoiseC = 0.5
	}
	if c.Sensor.Sim.Seed == 0 {
		c.Sensor.Sim.Seed = 1
	}
	if c.PID.Kp == 0 && c.PID.Ki == 0 && c.PID.Kd == 0 {
		c.PID = PIDConfig{Kp: 50, Ki: 10, Kd: 5}
	}
	if c.Safety.MaxTempC == 0 {
		c.Safety.MaxTempC = 1200
	}
	if c.Safety.MaxHeatingHours == 0 {
		c.Safety.MaxHeatingHours = 4
	}
	if c.Schedule.PresetsFile == "" {
		c.Schedule.PresetsFile = "var/config/schedules.yml"
	}
	if c.Schedule.ToleranceC == 0 {
		c.Schedule.ToleranceC = 5
	}
	if c.Telemetry.Capacity == 0 {
		c.Telemetry.Capacity = 200
	}
	if c.Telemetry.IntervalSeconds == 0 {
		c.Telemetry.IntervalSeconds = 2
	}
	if c.Telemetry.StatusHistory == 0 {
		c.Telemetry.StatusHistory = 60
	}
	if c.SSR.Backend == "" {
		c.SSR.Backend = SSRNone
	}
	if c.SSR.WindowSeconds == 0 {
		c.SSR.WindowSeconds = 2
	}
	if c.SSR.GPIOChip == "" {
		c.SSR.GPIOChip = "gpiochip0"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "kilnctl"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "kiln"
	}
	if c.MQTT.IntervalSeconds == 0 {
		c.MQTT.IntervalSeconds = 10
	}
	if c.DataLogger.Node == "" {
		c.DataLogger.Node = "kiln"
	}
	if c.DataLogger.IntervalSeconds == 0 {
		c.DataLogger.IntervalSeconds = 60
	}
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Sensor.Mode {
	case SensorSimulated, SensorMAX31855:
	case SensorModbus:
		if c.Sensor.ModbusMap == "" || c.Sensor.ModbusTemp1 == "" || c.Sensor.ModbusTemp2 == "" {
			errs = append(errs, errors.New("sensor: modbus mode needs modbus_map, modbus_temp_1 and modbus_temp_2"))
		}
	default:
		errs = append(errs, fmt.Errorf("sensor: unknown mode %q", c.Sensor.Mode))
	}
	if c.Sensor.SampleIntervalMs < 0 {
		errs = append(errs, errors.New("sensor: negative sample interval"))
	}
	if c.PID.Kp < 0 || c.PID.Ki < 0 || c.PID.Kd < 0 {
		errs = append(errs, errors.New("pid: gains must be >= 0"))
	}
	if c.Safety.MaxTempC < 0 || c.Safety.MaxHeatingHours < 0 {
		errs = append(errs, errors.New("safety: limits must be positive"))
	}
	if c.Schedule.ToleranceC < 0 {
		errs = append(errs, errors.New("schedule: negative tolerance"))
	}
	if c.Telemetry.Capacity < 0 || c.Telemetry.StatusHistory < 0 {
		errs = append(errs, errors.New("telemetry: negative capacity"))
	}
	switch c.SSR.Backend {
	case SSRNone, SSRGPIO:
	case SSRPhidgets:
		if c.SSR.PhidgetsAddr == "" {
			errs = append(errs, errors.New("ssr: phidgets backend needs phidgets_addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("ssr: unknown backend %q", c.SSR.Backend))
	}
	if c.SSR.WindowSeconds < 0 {
		errs = append(errs, errors.New("ssr: negative window"))
	}

	return errors.Join(errs...)
}
