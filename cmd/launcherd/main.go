package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaunagostinho/launcher-bridge/internal/command"
	"github.com/shaunagostinho/launcher-bridge/internal/launcher"
	"github.com/shaunagostinho/launcher-bridge/internal/server"
	"github.com/shaunagostinho/launcher-bridge/internal/transport"
	"github.com/shaunagostinho/launcher-bridge/web"
)

func main() {
	configPath := flag.String("config", "/etc/launcherd/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run with a simulated launcher instead of USB hardware")
	transportName := flag.String("transport", "", "Override transport (profile, socket, serial, websocket)")
	writeConfig := flag.Bool("write-config", false, "Write the effective config to -config and exit")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	log.Println("[main] launcherd starting")

	// Load config
	cfg := server.LoadConfig(*configPath)

	if *demo {
		cfg.Device.Type = "demo"
	}
	if *transportName != "" {
		cfg.Bluetooth.Transport = *transportName
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[main] %v", err)
	}

	if *writeConfig {
		if err := cfg.Save(); err != nil {
			log.Fatalf("[main] write config: %v", err)
		}
		log.Printf("[main] wrote %s", cfg.Path())
		return
	}

	// The launcher must be present before anything is advertised.
	dev, err := openLauncher(cfg)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}
	defer dev.Close()
	log.Printf("[main] using %s", dev.Name())

	interp := command.NewInterpreter(dev)
	if err := dev.SetLED(true); err != nil {
		dev.Close()
		log.Fatalf("[main] led on: %v", err)
	}
	if cfg.StartupSet != "" {
		log.Printf("[main] running command set %q", cfg.StartupSet)
		if err := interp.RunSet(cfg.StartupSet); err != nil {
			dev.Close()
			log.Fatalf("[main] %v", err)
		}
	}

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := server.New(cfg, newTransport(cfg), interp)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigCh {
			// SIGINT drops a connected client and keeps serving.
			if sig == syscall.SIGINT && srv.Interrupt() {
				log.Printf("[main] received %v, dropping client", sig)
				continue
			}
			log.Printf("[main] received %v, shutting down", sig)
			cancel()
			return
		}
	}()

	if err := srv.Run(ctx); err != nil {
		dev.Close()
		log.Fatalf("[main] server exited: %v", err)
	}
	log.Println("[main] stopped")
}

func openLauncher(cfg *server.Config) (launcher.Provider, error) {
	switch cfg.Device.Type {
	case "demo":
		return launcher.NewDemoProvider(), nil
	default:
		return launcher.Open(launcher.Config{
			Timeout: time.Duration(cfg.Device.TimeoutMs) * time.Millisecond,
		})
	}
}

func newTransport(cfg *server.Config) transport.Transport {
	bt := cfg.Bluetooth
	switch bt.Transport {
	case "socket":
		return transport.NewSocketTransport(bt.Channel)
	case "serial":
		return transport.NewSerialTransport(transport.SerialConfig{
			PortPath: bt.PortPath,
			BaudRate: bt.BaudRate,
		})
	case "websocket":
		return transport.NewWebSocketTransport(bt.ListenAddr, web.FS)
	default:
		return transport.NewProfileTransport(transport.ProfileConfig{
			Name:    bt.ServiceName,
			UUID:    bt.ServiceUUID,
			Channel: bt.Channel,
		})
	}
}
