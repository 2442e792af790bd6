package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nightcrane/deskstream"
	"github.com/nightcrane/deskstream/pkg/analytics"
	"github.com/nightcrane/deskstream/pkg/clipboard"
	"github.com/nightcrane/deskstream/pkg/config"
	"github.com/nightcrane/deskstream/pkg/logger"
	"github.com/nightcrane/deskstream/pkg/transport"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to config file")
	metricsAddr := flag.String("metrics-addr", ":9100", "Prometheus metrics listen address")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("deskstream-host %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	log := logger.NewDefaultLogger(logger.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	udpAddr, err := net.ResolveUDPAddr("udp", cfg.Network.ListenAddr)
	if err != nil {
		log.Fatal("invalid listen address", logger.Err(err))
	}
	listener, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		log.Fatal("failed to bind socket", logger.Err(err))
	}
	log.Info("listening", logger.String("addr", listener.LocalAddr().String()))

	remoteAddr, err := waitForFirstPacket(listener, cfg.Network.HandshakeTimeout)
	if err != nil {
		log.Fatal("failed waiting for viewer handshake", logger.Err(err))
	}
	listener.Close()

	conn, err := net.DialUDP("udp", udpAddr, remoteAddr)
	if err != nil {
		log.Fatal("failed to connect to viewer", logger.Err(err))
	}

	var dtlsChannel *transport.DTLSChannel
	if cfg.DTLS.CertFile != "" && cfg.DTLS.KeyFile != "" {
		bundle, err := transport.LoadCertificateBundle(cfg.DTLS.CertFile, cfg.DTLS.KeyFile)
		if err != nil {
			log.Fatal("failed to load certificate bundle", logger.Err(err))
		}
		dtlsChannel = transport.NewDTLSChannel(bundle, cfg.DTLS.InsecureSkipVerify, log)
		if err := dtlsChannel.Handshake(conn); err != nil {
			log.Fatal("dtls handshake failed", logger.Err(err))
		}
		log.Info("dtls channel ready")
	} else {
		log.Warn("running without DTLS: no cert_file/key_file configured")
	}

	var clipIO clipboard.IO
	if execIO, err := clipboard.NewExecIO(); err != nil {
		log.Warn("no OS clipboard binding available, using in-memory stand-in", logger.Err(err))
		clipIO = clipboard.NewMemoryIO("")
	} else {
		clipIO = execIO
	}

	session, err := deskstream.New(deskstream.Options{
		Conn:        conn,
		Config:      cfg,
		Logger:      log,
		DTLS:        dtlsChannel,
		ClipboardIO: clipIO,
	})
	if err != nil {
		log.Fatal("failed to create session", logger.Err(err))
	}

	session.Start()
	go func() {
		if err := session.Run(); err != nil {
			log.Error("session receive loop exited", logger.Err(err))
		}
	}()

	registry := analytics.NewMetricsRegistry()
	collector := analytics.NewInMemoryMetricsCollector()
	registry.Register("session", collector)
	exporter := analytics.NewSessionMetricsExporter(session.ID, session, collector)
	stopExport := exporter.StartPeriodicExport(5 * time.Second)
	defer close(stopExport)

	promExporter := analytics.NewPrometheusExporter(registry)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promExporter.PrometheusHandler())
	metricsServer := &http.Server{Addr: *metricsAddr, Handler: mux}
	go func() {
		log.Info("serving metrics", logger.String("addr", *metricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", logger.Err(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Info("deskstream host started")
	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	metricsServer.Shutdown(shutdownCtx)

	if err := session.Stop(); err != nil {
		log.Error("error stopping session", logger.Err(err))
	}
	log.Info("deskstream host stopped")
}

// waitForFirstPacket blocks until the first UDP datagram arrives (treated as
// the viewer's handshake trigger; its content is discarded) and returns its
// source address.
func waitForFirstPacket(listener *net.UDPConn, timeout time.Duration) (*net.UDPAddr, error) {
	if timeout > 0 {
		listener.SetReadDeadline(time.Now().Add(timeout))
	}
	buf := make([]byte, 64)
	_, addr, err := listener.ReadFromUDP(buf)
	return addr, err
}

