// Command casterd runs the desired-state convergence control plane for
// a fleet of DLNA/UPnP media renderers: it discovers renderers over
// SSDP, reconciles them against a file-backed device configuration,
// streams local video files to them over HTTP, and drives playback
// over AVTransport SOAP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dlnafleet/caster/internal/config"
	"github.com/dlnafleet/caster/internal/devicemanager"
	"github.com/dlnafleet/caster/internal/metrics"
	"github.com/dlnafleet/caster/internal/netutil"
	"github.com/dlnafleet/caster/internal/streaming"
	"github.com/dlnafleet/caster/internal/supervisor"
)

func main() {
	supervisorConfig := flag.String("supervisor-config", "", "run in supervisor mode: path to a multi-instance JSON config (see internal/supervisor)")
	configDir := flag.String("config-dir", "", "directory of device-config *.json sources (overrides CASTER_CONFIG_DIR)")
	discoveryInterval := flag.Duration("discovery-interval", 0, "sets RuntimeConfig.DiscoveryInterval (overrides CASTER_DISCOVERY_INTERVAL); the discovery loop itself runs every 10s regardless")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus /metrics listen address, empty disables it (overrides CASTER_METRICS_ADDR)")
	serveIP := flag.String("serve-ip", "", "LAN IP advertised to renderers for streaming URLs (overrides CASTER_SERVE_IP / auto-detect)")
	flag.Parse()

	if *supervisorConfig != "" {
		ctx, cancel := context.WithCancel(context.Background())
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sig
			cancel()
		}()
		if err := supervisor.Run(ctx, *supervisorConfig); err != nil {
			log.Fatalf("supervisor: %v", err)
		}
		return
	}

	rc := config.Load()
	if *configDir != "" {
		rc.ConfigDir = *configDir
	}
	if *discoveryInterval > 0 {
		rc.DiscoveryInterval = *discoveryInterval
	}
	if *metricsAddr != "" {
		rc.MetricsAddr = *metricsAddr
	}
	if *serveIP != "" {
		rc.ServeIP = *serveIP
	}

	ip := rc.ServeIP
	if ip == "" {
		detected, err := netutil.OutboundIP()
		if err != nil {
			log.Fatalf("casterd: resolve serve IP: %v", err)
		}
		ip = detected
	}
	log.Printf("casterd: serving streams from %s", ip)

	cfgService := config.New()
	if rc.ConfigDir != "" {
		cfgService.LoadDir(rc.ConfigDir)
	}

	m := metrics.New()

	registry := streaming.New()
	registry.SetMetrics(m)
	pool := streaming.NewServerPool(registry)

	mgr := devicemanager.New(cfgService, registry, pool, nil, ip, m)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.StartDiscovery(ctx)

	var metricsSrv *http.Server
	if rc.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: rc.MetricsAddr, Handler: mux}
		go func() {
			log.Printf("casterd: metrics listening on %s", rc.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("casterd: metrics server: %v", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for {
		s := <-sig
		if s == syscall.SIGHUP {
			if rc.ConfigDir != "" {
				log.Printf("casterd: SIGHUP, reloading %s", rc.ConfigDir)
				cfgService.LoadDir(rc.ConfigDir)
			}
			continue
		}
		break
	}

	fmt.Println("shutting down")
	cancel()
	mgr.StopDiscovery()
	registry.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	pool.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}
