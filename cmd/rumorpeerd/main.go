package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"rumorpeer/internal/adminapi"
	"rumorpeer/internal/engine"
	"rumorpeer/internal/originid"
	"rumorpeer/internal/peertable"
	"rumorpeer/internal/store"
	"rumorpeer/internal/transport"
	"rumorpeer/internal/ui"
)

func main() {
	uid := flag.Int("uid", os.Getuid(), "os user id the gossip port range is derived from")
	k := flag.Int("k", 2, "number of active gossip neighbors")
	antiEntropy := flag.Duration("anti-entropy", 10*time.Second, "anti-entropy tick period")
	resendTimeout := flag.Duration("resend-timeout", 2*time.Second, "hot-rumor resend timeout")
	name := flag.String("name", "", "fixed origin name, overriding the generated one")
	adminAddr := flag.String("admin-addr", "", "admin HTTP surface bind address (default: uid-derived, like the gossip socket)")
	headless := flag.Bool("headless", false, "run without the terminal UI")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()

	if *adminAddr == "" {
		*adminAddr = fmt.Sprintf("127.0.0.1:%d", transport.AdminPort(*uid))
	}

	logger := newLogger(*debug)
	defer logger.Sync()

	self := *name
	if self == "" {
		self = originid.New()
	}

	tp, err := transport.Bind(*uid, logger)
	if err != nil {
		logger.Fatal("failed to bind gossip socket", zap.Error(err))
	}
	defer tp.Close()

	peers := peertable.NewTable(tp.Candidates(), *k, rand.New(rand.NewSource(time.Now().UnixNano())))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var render engine.RenderFunc
	var transcript chan engine.Line
	if *headless {
		render = func(l engine.Line) {
			fmt.Printf("%s: %s\n", l.Origin, l.Text)
		}
	} else {
		transcript = ui.NewTranscript()
		render = ui.RenderFunc(transcript)
	}

	eng := engine.New(self, store.New(), peers, tp, rand.New(rand.NewSource(time.Now().UnixNano())), logger, render, *resendTimeout, *antiEntropy)

	tp.Run(ctx)
	go eng.Run(ctx, tp.Inbox())

	go func() {
		if err := adminapi.Serve(ctx, *adminAddr, adminapi.New(eng, logger), logger); err != nil {
			logger.Error("admin server exited", zap.Error(err))
		}
	}()

	logger.Info("rumorpeerd started",
		zap.String("origin", self),
		zap.String("gossip_addr", tp.LocalAddr()),
		zap.String("admin_addr", *adminAddr),
		zap.Strings("neighbors", peers.Neighbors()))

	if *headless {
		waitForSignal()
		return
	}

	model := ui.New(self, eng, transcript)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		logger.Error("tui exited with error", zap.Error(err))
	}
}

func newLogger(debug bool) *zap.Logger {
	if debug {
		logger, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return logger
	}
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return logger
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
