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

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kilnctl/internal/config"
	"kilnctl/internal/controller"
	"kilnctl/internal/controller/pidctrl"
	"kilnctl/internal/controller/safety"
	"kilnctl/internal/controller/schedule"
	"kilnctl/internal/emoncms"
	"kilnctl/internal/mqtt"
	"kilnctl/internal/phidgets"
	"kilnctl/internal/ssr"
	"kilnctl/internal/telemetry"
	"kilnctl/internal/thermo"
	"kilnctl/internal/web"
	"kilnctl/pkg/appctx"
	"kilnctl/pkg/eventbus"
	"kilnctl/pkg/logger"
	"kilnctl/pkg/modbus"
	"kilnctl/pkg/rootserv"
	"kilnctl/pkg/service"
	"kilnctl/pkg/sysmon"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {

	rootdir := os.Getenv("PROJECT_ROOT")
	if rootdir == "" {
		rootdir = "."
	}

	logPath := filepath.Join(rootdir, "var/logs/kilnctl.log")
	if err := logger.Init(logPath); err != nil {
		fmt.Fprintf(os.Stderr, "log file %s: %v\n", logPath, err)
	}
	defer logger.Close()
	log := logger.New("Main")

	appConf := config.LoadFile(filepath.Join(rootdir, "var/config/kiln.json"))

	// use conf to pass eventbus to whoever needs it
	appConf.EventBus = eventbus.New()

	ctx, ctxCancel := appctx.New()

	source, closeSource, err := openSource(ctx, appConf, rootdir)
	if err != nil {
		log.Fatal("sensor %s: %v", appConf.Sensor.Mode, err)
	}
	defer closeSource()

	presets, err := schedule.LoadPresets(filepath.Join(rootdir, appConf.Schedule.PresetsFile), appConf.Safety.MaxTempC)
	if err != nil {
		log.Fatal("presets: %v", err)
	}

	relay, closeRelay, err := openRelay(ctx, appConf)
	if err != nil {
		log.Fatal("ssr %s: %v", appConf.SSR.Backend, err)
	}
	defer closeRelay()

	pid := pidctrl.NewPIDController(appConf.PID.Kp, appConf.PID.Ki, appConf.PID.Kd).
		WithOutputLimits(0, 255).
		WithSamplePeriod(appConf.Sensor.SampleInterval()).
		WithAntiWindup(true)

	loop := controller.NewLoop(source, time.Now()).
		WithPID(pid).
		WithLimits(safety.Limits{
			MaxTempC:       appConf.Safety.MaxTempC,
			MaxHeatingTime: appConf.Safety.MaxHeatingTime(),
		}).
		WithPresets(presets).
		WithTelemetry(telemetry.New(appConf.Telemetry.Capacity), time.Duration(appConf.Telemetry.IntervalSeconds)*time.Second).
		WithStatusHistory(appConf.Telemetry.StatusHistory).
		WithSampleInterval(appConf.Sensor.SampleInterval()).
		WithTolerance(appConf.Schedule.ToleranceC).
		WithVersion(version)

	// init services
	server := rootserv.New(appConf.HTTPAddr)
	sysMonitorService := sysmon.New(rootdir)
	ssrService := ssr.NewActuator(relay, appConf.SSR.Window())
	controllerService := controller.New(appConf, loop, ssrService)
	webService := web.New(appConf, controllerService)
	dataLoggerService := emoncms.New(appConf, map[string]emoncms.DataSource{
		appConf.DataLogger.Node: controllerService,
		"host":                  sysMonitorService,
	})

	// attach web handler enabled services
	server.Attach("/", "Kiln Controller", webService)
	server.Attach("/logger", "Logger", logger.WebService())
	server.Attach("/sysmon", "System Monitor", sysMonitorService)

	services := []service.Runnable{
		ssrService,
		controllerService,
		webService,
		dataLoggerService,
		server,
	}

	if appConf.MQTT.Broker != "" {
		pub, err := mqtt.NewRealPublisher(appConf.MQTT)
		if err != nil {
			log.Error("mqtt disabled: %v", err)
		} else {
			services = append(services, mqtt.NewBridge(appConf, pub))
		}
	}

	// start runnable services
	exitCh := service.Start(ctx, ctxCancel, services)

	// waits for all services to stop
	code := <-exitCh
	appConf.EventBus.PrintStats()
	appConf.EventBus.Close()
	closeRelay()
	closeSource()
	logger.Close()
	os.Exit(code)
}

func openSource(ctx context.Context, conf *config.Config, rootdir string) (thermo.Source, func(), error) {
	nop := func() {}

	switch conf.Sensor.Mode {
	case config.SensorMAX31855:
		dev1, err := thermo.OpenSPIDev(conf.Sensor.SPIDevice1, int(conf.Sensor.SPISpeedHz))
		if err != nil {
			return nil, nop, err
		}
		dev2, err := thermo.OpenSPIDev(conf.Sensor.SPIDevice2, int(conf.Sensor.SPISpeedHz))
		if err != nil {
			dev1.Close()
			return nil, nop, err
		}
		src := thermo.NewHardware(thermo.NewMAX31855(dev1), thermo.NewMAX31855(dev2))
		return src, func() { dev1.Close(); dev2.Close() }, nil

	case config.SensorModbus:
		mbConf, err := modbus.LoadConfig(filepath.Join(rootdir, conf.Sensor.ModbusMap))
		if err != nil {
			return nil, nop, err
		}
		client, err := modbus.NewClient(ctx, mbConf)
		if err != nil {
			return nil, nop, err
		}
		src := thermo.NewHardware(
			thermo.NewModbusChannel(client, conf.Sensor.ModbusTemp1, conf.Sensor.ModbusStatus1),
			thermo.NewModbusChannel(client, conf.Sensor.ModbusTemp2, conf.Sensor.ModbusStatus2),
		)
		return src, client.Close, nil

	default:
		sim := thermo.DefaultSimConfig()
		sim.AmbientC = conf.Sensor.Sim.AmbientC
		sim.NoiseC = conf.Sensor.Sim.NoiseC
		sim.Seed = conf.Sensor.Sim.Seed
		return thermo.NewSimulated(sim), nop, nil
	}
}

func openRelay(ctx context.Context, conf *config.Config) (ssr.Actuator, func(), error) {
	nop := func() {}

	switch conf.SSR.Backend {
	case config.SSRGPIO:
		g, err := ssr.OpenGPIO(conf.SSR.GPIOChip, conf.SSR.GPIOLine, conf.SSR.ActiveLow)
		if err != nil {
			return nil, nop, err
		}
		return g.Set, func() { g.Close() }, nil

	case config.SSRPhidgets:
		// the relay is switched off after ctx is cancelled
		client := phidgets.NewClient(conf.SSR.PhidgetsAddr)
		return client.Relay(context.WithoutCancel(ctx), "kiln-ssr", conf.SSR.PhidgetsChannel, conf.SSR.PhidgetsHubPort), nop, nil

	default:
		return ssr.Discard, nop, nil
	}
}
