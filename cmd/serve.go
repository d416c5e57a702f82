package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/ninep/fileserver"
	"github.com/luma/ninep/internal/admin"
	"github.com/luma/ninep/internal/env"
	"github.com/luma/ninep/internal/meta"
	"github.com/luma/ninep/storage"
	"github.com/luma/ninep/transport"
)

var serveFlags struct {
	host      string
	port      int
	httpPort  int
	msize     uint32
	listeners int
	seed      string
	trace     bool
}

func init() {
	flags := ServeCmd.PersistentFlags()

	flags.IntVarP(&serveFlags.port, "port", "p", env.DefaultPort, "The port to listen for 9P connections on")
	flags.IntVar(&serveFlags.httpPort, "http-port", env.DefaultHTTPPort, "The port to listen to HTTP requests on")
	flags.StringVarP(&serveFlags.host, "host", "a", env.DefaultHost, "The host to listen on")
	flags.Uint32Var(&serveFlags.msize, "msize", 0, "The largest msize to negotiate")
	flags.IntVar(&serveFlags.listeners, "listeners", 0, "Number of SO_REUSEPORT listeners, defaults to the number of CPUs")
	flags.StringVar(&serveFlags.seed, "seed", "", "JSON file to load into the store")
	flags.BoolVar(&serveFlags.trace, "trace", false, "Log every 9P message")
}

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a JSON document over 9P2000",
	Long: `Serve a JSON document over 9P2000

Usage
	ninep serve --seed doc.json --port 5640

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, err := env.LoadConfig(ctx, configPath)
		if err != nil {
			return err
		}

		applyServeFlags(cmd, conf)
		if err := conf.Validate(); err != nil {
			return err
		}

		log, err := env.MakeLogger(conf.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync() // nolint:errcheck

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Starting", zap.String("build", meta.GetInfo().String()))
		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		store := storage.NewInmemoryStore()
		defer store.Close()

		if conf.Seed != "" {
			doc, err := os.ReadFile(conf.Seed)
			if err != nil {
				return err
			}

			if err := store.Restore(doc); err != nil {
				return fmt.Errorf("failed to load %s: %w", conf.Seed, err)
			}
		}

		go logUpdates(store.ListenToUpdates(), log.Named("storage"))

		srv := fileserver.New(fileserver.Options{
			Store: store,
			Msize: conf.Msize,
			Owner: conf.Owner,
			Log:   log.Named("fileserver"),
		})

		tcp := transport.NewTCP(transport.Options{
			Host:         conf.Host,
			Port:         conf.Port,
			Reuseport:    true,
			Trace:        conf.Trace,
			NumListeners: conf.Listeners,
			NewHandler: func() transport.Handler {
				return srv.NewHandler()
			},
			Log: log.Named("transport"),
		})

		if err := tcp.Start(ctx); err != nil {
			return err
		}

		router := admin.NewRouter(admin.Options{
			DebugHTTP: conf.DebugHTTP,
			Sessions:  tcp.Sessions,
			Log:       log.Named("http"),
		})

		s := &http.Server{
			Addr:    net.JoinHostPort(conf.Host, strconv.Itoa(conf.HTTPPort)),
			Handler: router,
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		log.Info("Listening",
			zap.Any("config", conf),
			zap.Stringer("addr", tcp.Addr()),
			zap.Int("httpPort", conf.HTTPPort))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// Clients get 5 seconds to finish and disconnect
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(ctx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := tcp.Shutdown(ctx); err != nil {
			log.Error("TCP server forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

// applyServeFlags lets flags given on the command line win over the config.
func applyServeFlags(cmd *cobra.Command, conf *env.Config) {
	flags := cmd.Flags()

	if flags.Changed("host") {
		conf.Host = serveFlags.host
	}
	if flags.Changed("port") {
		conf.Port = serveFlags.port
	}
	if flags.Changed("http-port") {
		conf.HTTPPort = serveFlags.httpPort
	}
	if flags.Changed("msize") {
		conf.Msize = serveFlags.msize
	}
	if flags.Changed("listeners") {
		conf.Listeners = serveFlags.listeners
	}
	if flags.Changed("seed") {
		conf.Seed = serveFlags.seed
	}
	if flags.Changed("trace") {
		conf.Trace = serveFlags.trace
	}
}

func logUpdates(updates <-chan *storage.Update, log *zap.Logger) {
	for update := range updates {
		if update.Value == nil {
			log.Debug("Removed", zap.String("path", update.Key()))
			continue
		}

		log.Debug("Updated", zap.String("path", update.Key()), zap.ByteString("value", update.Value))
	}
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
