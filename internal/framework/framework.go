// Package framework wires the message bus, task kernel, on-device
// config store, and all eight managers into one running appliance.
// It is the host-side equivalent of the firmware's fixed start-up
// sequence: bus first, managers in ManagerID order, devices registered
// by the caller before Start.
package framework

import (
	"context"
	"fmt"

	"github.com/dbehnke/dmr-nexus/pkg/bootconfig"
	"github.com/dbehnke/dmr-nexus/pkg/devices"
	"github.com/dbehnke/dmr-nexus/pkg/facedb"
	"github.com/dbehnke/dmr-nexus/pkg/facedb/sqlitestore"
	"github.com/dbehnke/dmr-nexus/pkg/fwkconfig"
	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
	"github.com/dbehnke/dmr-nexus/pkg/fwktask"
	"github.com/dbehnke/dmr-nexus/pkg/logger"
	"github.com/dbehnke/dmr-nexus/pkg/metrics"
	"github.com/dbehnke/dmr-nexus/pkg/mqtt"

	"github.com/dbehnke/dmr-nexus/internal/devices/dashboard"
	"github.com/dbehnke/dmr-nexus/internal/devices/mqttout"

	"github.com/dbehnke/dmr-nexus/pkg/manager/audio"
	"github.com/dbehnke/dmr-nexus/pkg/manager/camera"
	"github.com/dbehnke/dmr-nexus/pkg/manager/display"
	"github.com/dbehnke/dmr-nexus/pkg/manager/input"
	"github.com/dbehnke/dmr-nexus/pkg/manager/multicore"
	"github.com/dbehnke/dmr-nexus/pkg/manager/output"
	"github.com/dbehnke/dmr-nexus/pkg/manager/visionalgo"
	"github.com/dbehnke/dmr-nexus/pkg/manager/voicealgo"
)

// Appliance owns every manager and ambient service for one running
// process. The zero value is not usable; build one with New.
type Appliance struct {
	Config *bootconfig.Config
	Log    *logger.Logger

	Bus    *fwkmsg.Bus
	Kernel *fwktask.Kernel
	Store  *fwkconfig.Store

	Metrics   *metrics.Collector
	MQTT      *mqtt.Publisher
	Dashboard *dashboard.Hub
	FaceDB    facedb.Store

	Input      *input.Manager
	Camera     *camera.Manager
	Display    *display.Manager
	VisionAlgo *visionalgo.Manager
	Audio      *audio.Manager
	VoiceAlgo  *voicealgo.Manager
	Output     *output.Manager
	Multicore  *multicore.Manager

	metricsServer   *metrics.Server
	dashboardServer *dashboard.Server
}

// New constructs an Appliance from cfg. Every manager is built and its
// mailbox registered with the bus; devices still need to be registered
// by the caller and Start called before any message flows. voiceDev
// and multicoreDev may be nil - an appliance without ASR or a peer
// core simply never starts those two managers.
func New(cfg *bootconfig.Config, voiceDev devices.VoiceAlgoDevice, multicoreDev devices.MulticoreDevice, log *logger.Logger) (*Appliance, error) {
	if log == nil {
		log = logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	}

	bus := fwkmsg.NewBus(32, log)
	kernel := fwktask.NewKernel(bus, log)
	for id := fwkmsg.ManagerID(0); id < fwkmsg.TaskCount; id++ {
		bus.RegisterMailbox(id)
	}

	store, err := fwkconfig.Open(cfg.Store.Dir, cfg.Store.BuiltinFwkVersion, cfg.Store.AppVersion, cfg.Store.AppSize, log)
	if err != nil {
		return nil, fmt.Errorf("framework: opening config store: %w", err)
	}

	collector := metrics.NewCollector()
	metricsServer := metrics.NewServer(metrics.ServerConfig{
		Enabled: cfg.Metrics.Enabled,
		Port:    cfg.Metrics.Port,
		Path:    cfg.Metrics.Path,
	}, collector, log)

	publisher := mqtt.New(mqtt.Config{
		Enabled:     cfg.MQTT.Enabled,
		Broker:      cfg.MQTT.Broker,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		QoS:         cfg.MQTT.QoS,
		Retained:    cfg.MQTT.Retained,
	}, log)

	hub := dashboard.NewHub(log)
	dashboardServer := dashboard.NewServer(cfg.Dashboard, hub, log)

	var faceStore facedb.Store
	if cfg.FaceDB.Path != "" {
		fdb, err := sqlitestore.Open(sqlitestore.Config{Path: cfg.FaceDB.Path}, log)
		if err != nil {
			return nil, fmt.Errorf("framework: opening face database: %w", err)
		}
		if err := fdb.Init(cfg.FaceDB.FeatureSize); err != nil {
			return nil, fmt.Errorf("framework: initializing face database: %w", err)
		}
		faceStore = fdb
	}

	a := &Appliance{
		Config:    cfg,
		Log:       log,
		Bus:       bus,
		Kernel:    kernel,
		Store:     store,
		Metrics:   collector,
		MQTT:      publisher,
		Dashboard: hub,
		FaceDB:    faceStore,

		Input:      input.New(bus, kernel, log),
		Camera:     camera.New(bus, kernel, collector, log),
		Display:    display.New(bus, kernel, collector, log),
		VisionAlgo: visionalgo.New(bus, kernel, log),
		Audio:      audio.New(bus, kernel, log),
		Output:     output.New(bus, kernel, log),

		metricsServer:   metricsServer,
		dashboardServer: dashboardServer,
	}

	if voiceDev != nil {
		a.VoiceAlgo = voicealgo.New(bus, kernel, voiceDev, 0, log)
	}
	if multicoreDev != nil {
		a.Multicore = multicore.New(bus, kernel, multicoreDev, log)
	}

	return a, nil
}

// RegisterOutputDevices wires the dashboard websocket hub and the MQTT
// publisher in as output-manager event sinks, matching the UI/other
// classification the output manager enforces.
func (a *Appliance) RegisterOutputDevices() error {
	if _, err := a.Output.RegisterEventHandler("dashboard", dashboard.New(0, "dashboard", a.Dashboard)); err != nil {
		return fmt.Errorf("framework: registering dashboard output: %w", err)
	}
	if _, err := a.Output.RegisterEventHandler("mqtt", mqttout.New(1, "mqtt", a.MQTT, a.Log)); err != nil {
		return fmt.Errorf("framework: registering mqtt output: %w", err)
	}
	return nil
}

// Start brings up every configured manager in ManagerID order, then
// the ambient HTTP servers and the MQTT client. Device registration
// must already be complete.
func (a *Appliance) Start(ctx context.Context) error {
	if err := a.Input.Start(); err != nil {
		return fmt.Errorf("framework: starting input manager: %w", err)
	}
	if err := a.Camera.Start(); err != nil {
		return fmt.Errorf("framework: starting camera manager: %w", err)
	}
	if err := a.Display.Start(); err != nil {
		return fmt.Errorf("framework: starting display manager: %w", err)
	}
	if err := a.VisionAlgo.Start(); err != nil {
		return fmt.Errorf("framework: starting vision-algo manager: %w", err)
	}
	if err := a.Audio.Start(); err != nil {
		return fmt.Errorf("framework: starting audio manager: %w", err)
	}
	if a.VoiceAlgo != nil {
		if err := a.VoiceAlgo.Start(); err != nil {
			return fmt.Errorf("framework: starting voice-algo manager: %w", err)
		}
	}
	if err := a.Output.Start(); err != nil {
		return fmt.Errorf("framework: starting output manager: %w", err)
	}
	if a.Multicore != nil {
		if err := a.Multicore.Start(); err != nil {
			return fmt.Errorf("framework: starting multicore manager: %w", err)
		}
	}

	if a.Config.MQTT.Enabled {
		if err := a.MQTT.Start(ctx); err != nil {
			return fmt.Errorf("framework: starting mqtt publisher: %w", err)
		}
	}
	go func() {
		if err := a.metricsServer.Start(ctx); err != nil {
			a.Log.Error("metrics server stopped", logger.Error(err))
		}
	}()
	go func() {
		if err := a.dashboardServer.Start(ctx); err != nil {
			a.Log.Error("dashboard server stopped", logger.Error(err))
		}
	}()
	return nil
}
