package main

import (
	"flag"
	"log"
	"runtime"

	"gpuparticles/config"

	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/zap"
)

func init() {
	// This is needed to arrange that main() runs on main thread.
	// See documentation for functions that are only allowed to be called
	// from the main thread.
	runtime.LockOSThread()

	flag.BoolVar(&args.debug, "debug", false, "Enable Vulkan validation layers")
	flag.StringVar(&args.config, "config", "", "Path to a YAML config overriding the defaults")
}

var args struct {
	debug  bool
	config string
}

func main() {
	flag.Parse()

	cfg, err := config.Load(args.config)
	if err != nil {
		log.Fatalf("ERROR: loading config: %s", err)
	}

	logger, err := newLogger(args.debug)
	if err != nil {
		log.Fatalf("ERROR: creating logger: %s", err)
	}
	defer func() { _ = logger.Sync() }()

	app := &ParticleApp{
		cfg: cfg,
		log: logger,

		enableValidationLayers: args.debug,
		validationLayers: []string{
			"VK_LAYER_KHRONOS_validation\x00",
		},
		deviceExtensions: []string{
			vk.KhrSwapchainExtensionName + "\x00",
		},
		physicalDevice: vk.PhysicalDevice(vk.NullHandle),
		device:         vk.Device(vk.NullHandle),
		surface:        vk.NullSurface,
		swapChain:      vk.NullSwapchain,
	}
	if err := app.Run(); err != nil {
		logger.Fatal("program failed", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

const title = "GPU Particles"
