package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkrupp/memberfed/internal/infra/config"
	"github.com/mkrupp/memberfed/internal/infra/credential"
	"github.com/mkrupp/memberfed/internal/infra/logging"
	"github.com/mkrupp/memberfed/internal/infra/transport/http"
	"github.com/mkrupp/memberfed/internal/repo/member"
	"github.com/mkrupp/memberfed/internal/svc/membersvc"
)

const (
	appName = "memberfed"
	svcName = "membersvc"
)

type Config struct {
	config.EnvConfig

	Log    logging.LoggerConfig          `envPrefix:"LOG_"`
	Member membersvc.MemberServiceConfig `envPrefix:"MEMBER_"`
	HTTP   membersvc.HTTPTransportConfig `envPrefix:"HTTP_"`
	DB     member.SQLRepositoryConfig    `envPrefix:"DB_"`
}

func main() {
	var (
		cfg Config

		configPrefix = strings.ToUpper(strings.Join([]string{appName, svcName}, "_"))
		loggerName   = strings.ToLower(strings.Join([]string{appName, svcName}, "."))
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		panic(err)
	}

	logging.Configure(ctx, cfg.Log, loggerName)

	if err := run(ctx, cfg); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, cfg Config) (err error) {
	log := logging.GetLogger("cmd.membersvc")

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "error", "err", err)

			return
		}

		log.InfoContext(ctx, "shutdown")
	}()

	if err := credential.Init(); err != nil {
		return fmt.Errorf("init credential digest: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), //nolint:exhaustruct
	)

	memberSvc, err := membersvc.NewMemberService(
		member.SQLRepositoryFactory(cfg.DB),
		cfg.Member,
		membersvc.NewMetrics(registry, cfg.Member.ComponentID),
	)
	if err != nil {
		return fmt.Errorf("new member service: %w", err)
	}
	defer memberSvc.Close()

	//nolint:exhaustruct
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	httpTransport := membersvc.NewHTTPTransport(memberSvc, cfg.HTTP, metricsHandler)

	httpMetrics := http.NewHTTPMetrics(registry, svcName)

	if err := http.ListenAndServe(ctx, httpTransport, cfg.HTTP.HTTPTransportConfig, httpMetrics); err != nil {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}
