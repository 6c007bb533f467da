package start

import (
	"context"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/murtihash94/kasal/api"
	"github.com/murtihash94/kasal/internal/engine/crewai"
	"github.com/murtihash94/kasal/internal/event"
	"github.com/murtihash94/kasal/internal/tracking"
	"github.com/murtihash94/kasal/internal/scheduler"
	"github.com/murtihash94/kasal/pkg/db"
	"github.com/murtihash94/kasal/pkg/log"
	"github.com/spf13/cobra"
)

const (
	usage   = "start"
	short   = "Start a kasal orchestration instance"
	long    = "This command starts a kasal orchestration instance"
	example = "kasal start"
)

var (
	// Cmd is the start command.
	Cmd = &cobra.Command{
		Use:        usage,
		Short:      short,
		Long:       long,
		Aliases:    []string{"s"},
		SuggestFor: []string{"launch", "boot", "up", "run", "begin"},
		Example:    example,
		RunE:       start,
	}
)

var cancel context.CancelFunc

func start(cmd *cobra.Command, args []string) error {
	signalChan := make(chan os.Signal, 1)

	go func() {
		for s := range signalChan {
			switch s {
			case syscall.SIGUSR1:
				log.Info("dumping stack traces due to SIGUSR1 signal")
				if profile := pprof.Lookup("goroutine"); profile != nil {
					if err := profile.WriteTo(os.Stdout, 1); err != nil {
						log.Error("write goroutine profile", "error", err)
					}
				}
			case syscall.SIGINT:
				log.Info("gracefully shutting down due to SIGINT signal")
				shutdown()
				os.Exit(0)
			}
		}
	}()

	signal.Notify(signalChan, syscall.SIGUSR1, syscall.SIGINT)

	var errs = make(chan error)
	ctx, cancelFunc := context.WithCancel(context.Background())
	cancel = cancelFunc

	log.Info("migrating database")
	if err := db.Migrate(); err != nil {
		log.Fatal("database migration failure", "error", err)
	}

	event.Default().Register(tracking.NewTraceWriter(db.Connection()))

	callbacks := tracking.Service(ctx).Callbacks()
	crewai.Default().SetHooks(crewai.TaskHooks{
		OnStart: callbacks.OnStart,
		OnEnd:   callbacks.OnEnd,
		OnError: callbacks.OnError,
	})

	go func() {
		log.Info("spinning up api")
		errs <- api.Start()
	}()

	go func() {
		log.Info("launching schedule routine")
		errs <- scheduler.New(ctx, scheduler.Options{}).Start(ctx)
	}()

	defer shutdown()

	return <-errs
}

func shutdown() {
	if cancel != nil {
		cancel()
	}
	if err := api.Shutdown(context.Background()); err != nil {
		log.Error("api shutdown failure", "error", err)
	}
}
