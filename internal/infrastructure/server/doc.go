/*
Package server wires configuration, logging, metrics, the session registry
and the HTTP and WebSocket APIs into one process.

	cfg, _ := config.Load()
	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(ctx); err != nil {
		log.Fatal(err)
	}

Run starts the sessions of autostart profiles, watches the profile file when
enabled, and on cancellation shuts the HTTP server down before closing every
session.
*/
package server
