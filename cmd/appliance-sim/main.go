// Command appliance-sim runs the full appliance framework against
// in-memory fake devices: no real camera, display, or microphone is
// required. It exists for local development and for exercising the
// dashboard/MQTT/metrics surfaces end to end.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

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
		println("appliance-sim " + version + " (" + gitCommit + ")")
		os.Exit(0)
	}

	cfg, err := bootconfig.Load(*configFile)
	if err != nil {
		println("loading configuration: " + err.Error())
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log.Info("starting appliance-sim", logger.String("version", version), logger.String("commit", gitCommit))

	voiceDev := testfakes.NewVoiceAlgo()
	app, err := framework.New(cfg, voiceDev, nil, log)
	if err != nil {
		log.Error("building appliance", logger.Error(err))
		os.Exit(1)
	}

	capture := registerFakeDevices(app)

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

	go driveSyntheticCapture(ctx, capture)

	<-sigCh
	log.Info("shutting down")
	cancel()
	time.Sleep(200 * time.Millisecond)
}

// registerFakeDevices wires one in-memory device per manager so the
// whole pipeline can run without real hardware.
func registerFakeDevices(app *framework.Appliance) *testfakes.Capture {
	capture := testfakes.NewCapture(fwkmsg.FormatRGB888)
	app.Camera.RegisterDevice("fake-camera", capture, fwkmsg.FrameDescriptor{Width: 640, Height: 480, SrcFormat: fwkmsg.FormatRGB888})

	disp := testfakes.NewDisplay(fwkmsg.FrameDescriptor{Width: 640, Height: 480, DstFormat: fwkmsg.FormatRGB888})
	app.Display.RegisterDevice("fake-display", disp)

	valgo := testfakes.NewVisionAlgo([devices.VAlgoFrameKinds]devices.FrameRequirement{
		{Supported: true, AutoStart: true, Width: 640, Height: 480, Format: fwkmsg.FormatRGB888},
	})
	app.VisionAlgo.RegisterDevice("fake-vision-algo", valgo)

	afe := testfakes.NewAFE()
	app.Audio.RegisterDevice("fake-afe", afe)

	return capture
}

// driveSyntheticCapture periodically enqueues a synthetic frame so the
// camera/display/vision-algo chain has something to do.
func driveSyntheticCapture(ctx context.Context, capture *testfakes.Capture) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	frame := make([]byte, 640*480*3)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = capture.Enqueue(frame)
		}
	}
}
