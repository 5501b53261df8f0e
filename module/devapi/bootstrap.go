package devapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"PPClient/global"
	"PPClient/global/config"
	"PPClient/logger"
	"PPClient/service/chat"
	"PPClient/service/events"
	"PPClient/service/hint"
	"PPClient/service/kafka"
	"PPClient/service/nacos"
	"PPClient/service/natsx"
	"PPClient/service/storage"
	"PPClient/service/storage/mongo"
	"PPClient/service/storage/postgres"
	"PPClient/service/storage/redis"
	"PPClient/tools"
	"PPClient/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OpenStore 按配置选择存储后端
func OpenStore(ctx context.Context, conf config.ServerConfig) (storage.Store, error) {
	switch conf.Store {
	case config.StoreMemory, "":
		return storage.NewMemory(), nil
	case config.StoreRedis:
		return redis.Open(ctx, conf.Redis)
	case config.StoreMongo:
		return mongo.Open(ctx, conf.Mongo)
	case config.StorePostgres:
		return postgres.Open(ctx, conf.Postgres)
	default:
		return nil, errs.ErrArgs.WrapMsg("unknown store", "store", conf.Store)
	}
}

// Run 启动开发服务端，阻塞直到 ctx 结束。updates 可为 nil；
// 收到的配置只热更新日志级别和调试日志，其余需要重启。
func Run(ctx context.Context, conf config.ServerConfig, updates <-chan config.ServerConfig) error {
	if err := conf.Validate(); err != nil {
		return err
	}
	log := logger.Named("devapi")
	logger.SetLevel(conf.LogLevel)
	gin.SetMode(conf.GinMode)

	store, err := OpenStore(ctx, conf)
	if err != nil {
		return err
	}
	defer store.Close()

	hub := chat.NewHub(conf.Hub)
	defer hub.Close()

	pub := events.NewPublisher()
	pub.Hub = hub

	if conf.Nats.Enabled {
		bus, err := natsx.Dial(conf.Nats.Config)
		if err != nil {
			return err
		}
		defer bus.Close()
		if err := bus.RegisterRoute(hint.HintRoute(tools.ParseMode(conf.Nats.Mode))); err != nil {
			return err
		}
		pub.Nats = &natsx.NatsxSyncPublisher{P: bus, Retries: 2, Backoff: 100 * time.Millisecond}
	}

	g, gctx := errgroup.WithContext(ctx)

	if conf.Kafka.Enabled {
		kc := conf.Kafka.Config
		topics := []string{global.MessageSentTopic, global.HintTopic}
		glog.Infof("[Kafka] brokers=%v topics=%v", kc.Brokers, topics)
		if kc.AutoCreateTopicsOnStart {
			if err := kafka.EnsureTopics(kc, topics); err != nil {
				glog.Infof("[Kafka][ERR] ensure topics: %v", err)
				return err
			}
		}
		prod, err := kafka.NewProducer(kc)
		if err != nil {
			glog.Infof("[Kafka][ERR] init producer: %v", err)
			return err
		}
		defer prod.Close()
		pub.Kafka = prod
		pub.FanoutHints = conf.Kafka.FanoutHints
		pub.NodeID = conf.Kafka.NodeID
		if conf.Kafka.FanoutHints {
			g.Go(func() error {
				defer glog.Infof("[Kafka] context done, relay stopped")
				return events.RunRelay(gctx, kc, conf.Kafka.NodeID, hub)
			})
		}
	}

	if conf.Nacos.Enabled && conf.Nacos.Register {
		naming, err := nacos.NewNamingClient(conf.Nacos.Server)
		if err != nil {
			return err
		}
		reg := nacos.NewRegistry(naming, conf.Nacos.ServiceName, conf.Nacos.IP, conf.Nacos.Port)
		reg.Metadata["store"] = conf.Store
		if err := reg.Register(); err != nil {
			return err
		}
		defer func() {
			if err := reg.Deregister(); err != nil {
				log.Warn("nacos deregister", zap.Error(err))
			}
		}()
	}

	api := New(conf, store, hub, pub)
	srv := &http.Server{
		Addr:              conf.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if updates != nil {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case next := <-updates:
					api.Apply(next)
				}
			}
		})
	}
	g.Go(func() error {
		log.Info("devapi listening", zap.String("addr", conf.Addr), zap.String("store", conf.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// 先关 WebSocket，Shutdown 不处理被劫持的连接
		hub.Close()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
