// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"campusnexus/internal/pkg/logger"
	"campusnexus/internal/pkg/nacos"
	"campusnexus/internal/pkg/tracing"
	"campusnexus/internal/pkg/utils"
)

type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client       // 未启用 Nacos 时为 nil
	Config *nacos.ConfigClient // 未启用 Nacos 时为 nil
}

// Worker 是随服务一起启动的后台任务，ctx 取消时应尽快返回。
type Worker func(ctx context.Context) error

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) []Worker // 注册路由，并返回需要随服务运行的后台任务
	OnShutdown       func(ctx context.Context)    // 释放服务自己的资源，在 HTTP 服务关闭之后调用
}

// StartService 封装了服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	cfg := GetCurrentConfig()

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// 2. Nacos 注册和配置中心（可选）
	var (
		namingClient *nacos.Client
		ip           string
	)
	if cfg.Infra.Nacos.Enabled {
		namingClient, ip = registerWithNacos(info, cfg.Infra.Nacos)
	}

	// 3. 创建 HTTP Server
	mux := http.NewServeMux()
	var workers []Worker
	if info.RegisterHandlers != nil {
		workers = info.RegisterHandlers(AppCtx{Mux: mux, Nacos: namingClient, Config: nacosConfigClient})
	}
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           logger.Middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Msgf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "could not listen on %s", server.Addr)
		}
		return nil
	})
	for _, w := range workers {
		g.Go(func() error { return w(gctx) })
	}

	// 4. 收到退出信号或任一任务失败后开始关停
	<-gctx.Done()
	log.Info().Msgf("Shutting down service %s...", info.ServiceName)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// a. 先从 Nacos 注销，避免新流量进入
	if namingClient != nil {
		if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			log.Error().Err(err).Msg("Error deregistering from Nacos")
		}
		namingClient.Close()
	}
	if nacosConfigClient != nil {
		nacosConfigClient.Close()
	}

	// b. 关闭 HTTP 服务器
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down http server")
	} else {
		log.Info().Msg("HTTP server shut down.")
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("service stopped with error")
	}

	// c. 释放服务资源
	if info.OnShutdown != nil {
		info.OnShutdown(shutdownCtx)
	}

	// d. 最后关闭 Tracer Provider，确保缓冲的 span 都被发送出去
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down tracer provider")
	} else {
		log.Info().Msg("Tracer provider shut down.")
	}

	log.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}

func registerWithNacos(info AppInfo, nc NacosConfig) (*nacos.Client, string) {
	serverConfigs, err := nacos.ServerConfigs(nc.ServerAddrs)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid Nacos server address format")
	}
	clientConfig := nacos.ClientConfig(nc.Namespace)

	namingClient, err := nacos.NewNacosClientWithConfigs(serverConfigs, &clientConfig, nc.Group)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize nacos client")
	}

	nacosConfigClient, err = nacos.NewConfigClient(serverConfigs, &clientConfig, nc.Group)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize nacos config client")
	}
	if nc.DataID != "" {
		if err := watchRemoteConfig(nacosConfigClient, nc.DataID); err != nil {
			log.Error().Err(err).Str("data_id", nc.DataID).Msg("remote config unavailable, keeping local config")
		}
	}

	ip, err := utils.GetOutboundIP()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get outbound IP address")
	}
	if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		log.Fatal().Err(err).Msg("failed to register service with nacos")
	}
	return namingClient, ip
}
