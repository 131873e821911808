package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/grussorusso/offloadledge/internal/api"
	"github.com/grussorusso/offloadledge/internal/bus"
	"github.com/grussorusso/offloadledge/internal/codecache"
	"github.com/grussorusso/offloadledge/internal/config"
	"github.com/grussorusso/offloadledge/internal/engine"
	"github.com/grussorusso/offloadledge/internal/metrics"
	"github.com/grussorusso/offloadledge/internal/offload"
	"github.com/grussorusso/offloadledge/internal/procedure"
	"github.com/grussorusso/offloadledge/internal/registration"
	"github.com/grussorusso/offloadledge/internal/session"
	"github.com/grussorusso/offloadledge/internal/stats"
	"github.com/grussorusso/offloadledge/internal/telemetry"
	"github.com/grussorusso/offloadledge/internal/transfer"
	"github.com/grussorusso/offloadledge/internal/transformer"
	"github.com/grussorusso/offloadledge/internal/wamp"
	"github.com/grussorusso/offloadledge/utils"
)

func openUnits() *codecache.Cache {
	units, err := codecache.Open(codecache.Options{
		Dir:             config.GetString(config.CLASS_UNITS_DIR, "java_classes"),
		IndexDir:        config.GetString(config.INDEX_DIR, filepath.Join("java_classes", ".index")),
		FrontSize:       config.GetInt(config.CACHE_SIZE, 100),
		FrontExpiration: time.Duration(config.GetInt(config.CACHE_ITEM_EXPIRATION, 0)) * time.Second,
		FrontCleanup:    time.Duration(config.GetInt(config.CACHE_CLEANUP, 60)) * time.Second,
	})
	if err != nil {
		log.Fatal(err)
	}
	return units
}

// registerToEtcd makes the node visible to the others attached to the realm.
func registerToEtcd(routerURL, realm string) *registration.Registry {
	registry := registration.NewRegistry(
		config.GetString(config.REGISTRY_BASEDIR, registration.DefaultBaseDir),
		realm,
		int64(config.GetInt(config.REGISTRATION_TTL, registration.DefaultTTL)))

	ip, err := utils.OutboundIp(routerURL)
	if err != nil {
		log.Fatal(err)
	}
	url := fmt.Sprintf("http://%s:%d", ip.String(), config.GetInt(config.API_PORT, 1323))
	if err := registry.RegisterToEtcd(url); err != nil {
		log.Fatal(err)
	}
	return registry
}

func main() {
	configFileName := ""
	if len(os.Args) > 1 {
		configFileName = os.Args[1]
	}
	config.ReadConfiguration(configFileName)

	routerURL := config.RouterURL()
	realm := config.GetString(config.ROUTER_REALM, config.DefaultRealm)
	b, err := wamp.Dial(routerURL, realm, time.Duration(config.GetInt(config.ROUTER_TIMEOUT, 5))*time.Second)
	if err != nil {
		fmt.Println("Failed to connect to Router!")
		fmt.Printf("Are you sure there is a router component running at: %s?\n", routerURL)
		log.Printf("%v\n", err)
		os.Exit(1)
	}

	metrics.Init()
	if config.GetBool(config.TRACING_ENABLED, false) {
		shutdown, err := telemetry.SetupOTelSDK(context.Background())
		if err != nil {
			log.Fatal(err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Printf("Could not flush traces: %v\n", err)
			}
		}()
	}

	units := openUnits()
	eng, err := engine.FromConfig()
	if err != nil {
		log.Fatal(err)
	}

	var etcdRegistry *registration.Registry
	var claimer procedure.Claimer
	if config.GetBool(config.ETCD_ENABLED, false) {
		etcdRegistry = registerToEtcd(routerURL, realm)
		claimer = etcdRegistry
	}

	topics := bus.Topics{Prefix: config.GetString(config.TOPIC_PREFIX, "")}
	procedures := procedure.NewRegistry(b, claimer)
	coordinator := offload.NewCoordinator(units, transformer.JavaTransformer{}, eng, procedures, b, topics)
	channel := transfer.NewChannel(
		config.GetString(config.RECEIVED_FILES_DIR, "data"),
		time.Duration(config.GetInt(config.TRANSFER_PACING, 1000))*time.Millisecond)

	lifecycle := session.NewLifecycle(b, topics, stats.NewCollector(), session.Handlers{
		Offload:      coordinator.OffloadHandler(),
		FileReceived: channel.FileReceivedHandler(),
		Progressive:  channel.ProgressiveHandler(),
	})

	var e *echo.Echo
	if config.GetInt(config.API_PORT, 1323) > 0 {
		e = echo.New()
		go api.StartAPIServer(e, api.NewServer(units, procedures, b.SessionID))
	}

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			procedures.Reset(context.Background())
			if etcdRegistry != nil {
				// deregister from etcd; claims go with the lease
				if err := etcdRegistry.Deregister(); err != nil {
					log.Printf("Could not deregister: %v\n", err)
				}
				if err := utils.CloseEtcdClient(); err != nil {
					log.Printf("Could not close the etcd client: %v\n", err)
				}
			}
			b.Close()
		})
	}

	// Register a signal handler to cleanup things on termination
	ctx := api.RegisterTerminationHandler(e, cleanup)

	err = lifecycle.Run(ctx)
	cleanup()
	if closeErr := units.Close(); closeErr != nil {
		log.Printf("Could not close the units index: %v\n", closeErr)
	}
	if err != nil {
		log.Printf("Session failed: %v\n", err)
		os.Exit(1)
	}
	if sessionErr := b.Err(); sessionErr != nil {
		log.Printf("Session ended: %v\n", sessionErr)
	}
}
