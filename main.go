package main

import (
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"
)

var (
	listenAddr = flag.String("l", ":8421", "tcp listen address")
	wsAddr     = flag.String("ws", "", "websocket listen address (empty disables)")
	verbose    = flag.Bool("v", false, "debug logging")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	world := NewWorldStore()
	players := NewPlayerStore()
	router := NewRouter(log)
	lifecycle := NewLifecycle(world, players, router, log)
	dispatch := NewDispatcher(world, players, router, log)
	server := NewServer(lifecycle, dispatch, log)

	var g errgroup.Group
	g.Go(func() error {
		l, err := net.Listen("tcp", *listenAddr)
		if err != nil {
			return err
		}
		log.Info("listening", "addr", *listenAddr)
		return server.ServeTCP(l)
	})
	if *wsAddr != "" {
		g.Go(func() error {
			mux := http.NewServeMux()
			mux.Handle("/ws", NewGateway(server))
			log.Info("websocket listening", "addr", *wsAddr)
			return http.ListenAndServe(*wsAddr, mux)
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
}
