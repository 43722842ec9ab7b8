// Command appliance-bridge runs the appliance framework with the
// multicore bridge enabled over a TCP peer link (internal/devices/netlink),
// for deployments split across two processes or two hosts. Device
// wiring is otherwise identical to appliance-sim until real capture/
// display/ASR drivers are supplied; see DESIGN.md.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/dbehnke/dmr-nexus/internal/devices/netlink"
	"github.com/dbehnke/dmr-nexus/internal/framework"
	"github.com/dbehnke/dmr-nexus/internal/testfakes"
	"github.com/dbehnke/dmr-nexus/pkg/bootconfig"
	"github.com/dbehnke/dmr-nexus/pkg/devices"
	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	configFile := pflag.String("config", "", "path to deployment configuration file")
	showVersion := pflag.Bool("version", false, "print version information and exit")
	pflag.Parse()

	if *showVersion {
		println("appliance-bridge " + version + " (" + gitCommit + ")")
		os.Exit(0)
	}

	cfg, err := bootconfig.Load(*configFile)
	if err != nil {
		println("loading configuration: " + err.Error())
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log.Info("starting appliance-bridge", logger.String("version", version), logger.String("commit", gitCommit))

	var link devices.MulticoreDevice
	if cfg.Multicore.Enabled {
		link = netlink.New(netlink.Config{Listen: cfg.Multicore.Listen, Peer: cfg.Multicore.Peer}, log)
	}

	voiceDev := testfakes.NewVoiceAlgo()
	app, err := framework.New(cfg, voiceDev, link, log)
	if err != nil {
		log.Error("building appliance", logger.Error(err))
		os.Exit(1)
	}

	registerDevices(app)

	if err := app.RegisterOutputDevices(); err != nil {
		log.Error("registering output devices", logger.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		log.Error("starting appliance", logger.Error(err))
		os.Exit(1)
	}

	<-sigCh
	log.Info("shutting down")
	cancel()
	time.Sleep(200 * time.Millisecond)
}

func registerDevices(app *framework.Appliance) {
	capture := testfakes.NewCapture(fwkmsg.FormatRGB888)
	app.Camera.RegisterDevice("camera0", capture, fwkmsg.FrameDescriptor{Width: 1280, Height: 720, SrcFormat: fwkmsg.FormatRGB888})

	disp := testfakes.NewDisplay(fwkmsg.FrameDescriptor{Width: 1280, Height: 720, DstFormat: fwkmsg.FormatRGB888})
	app.Display.RegisterDevice("panel0", disp)

	valgo := testfakes.NewVisionAlgo([devices.VAlgoFrameKinds]devices.FrameRequirement{
		{Supported: true, AutoStart: true, Width: 1280, Height: 720, Format: fwkmsg.FormatRGB888},
	})
	app.VisionAlgo.RegisterDevice("face-match", valgo)

	afe := testfakes.NewAFE()
	app.Audio.RegisterDevice("afe0", afe)
}
