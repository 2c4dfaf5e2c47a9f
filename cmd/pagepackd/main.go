// Command pagepackd serves the weekly-shared page-pack HTTP API,
// following the structure of aptutil's cmd/go-apt-cacher and the
// goroutine supervision pattern of aptutil's mirror/control.go.
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

	"github.com/BurntSushi/toml"
	"github.com/cybozu-go/log"
	"github.com/cybozu-go/well"

	"github.com/weeklypack/pagepackd/api"
	"github.com/weeklypack/pagepackd/config"
	"github.com/weeklypack/pagepackd/coordinator"
	"github.com/weeklypack/pagepackd/store"
)

const defaultConfigPath = "/etc/pagepackd.toml"

var (
	configPath = flag.String("f", defaultConfigPath, "configuration file name")
	listenAddr = flag.String("s", "", "listen address, overrides config addr")
	logLevel   = flag.String("l", "", "log level [critical/error/warning/info/debug]")
)

func main() {
	flag.Parse()

	var c config.Config
	md, err := toml.DecodeFile(*configPath, &c)
	if err != nil {
		log.ErrorExit(err)
	}
	if len(md.Undecoded()) > 0 {
		log.Error("invalid config keys", map[string]interface{}{
			"_keys": fmt.Sprintf("%#v", md.Undecoded()),
		})
		os.Exit(1)
	}
	c.SetDefaults()

	if *listenAddr != "" {
		c.Addr = *listenAddr
	}
	if *logLevel != "" {
		c.LogLevel = *logLevel
	}
	if err := log.DefaultLogger().SetThresholdByName(c.LogLevel); err != nil {
		log.ErrorExit(err)
	}
	if c.StateDir == "" {
		log.ErrorExit(fmt.Errorf("state_dir is required"))
	}

	coord, err := buildCoordinator(c)
	if err != nil {
		log.ErrorExit(err)
	}

	l, err := net.Listen("tcp", c.Addr)
	if err != nil {
		log.ErrorExit(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	env := well.NewEnvironment(ctx)
	env.Go(func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			l.Close()
		}()
		return http.Serve(l, api.Handler{Coordinator: coord})
	})

	log.Info("pagepackd started", map[string]interface{}{
		"_addr": c.Addr,
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	signal.Stop(sig)
	cancel()

	env.Stop()
	if err := env.Wait(); err != nil {
		log.Error(err.Error(), nil)
	}
}

func buildCoordinator(c config.Config) (*coordinator.Coordinator, error) {
	meta := store.NewMetadataStore(c.StateDir + "/metadata")
	if err := meta.Load(); err != nil {
		return nil, err
	}
	packs := store.NewPackStore(c.StateDir + "/packs")
	if err := packs.Load(); err != nil {
		return nil, err
	}
	lock := store.NewDomainLock(c.StateDir + "/locks")

	coord := coordinator.New(meta, packs, lock)
	coord.LockTimeout = secondsToDuration(c.LockTimeoutS)
	coord.LockPollInterval = millisToDuration(c.LockPollMs)
	return coord, nil
}
