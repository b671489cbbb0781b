package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/CrowderSoup/retro-board/config"
	"github.com/CrowderSoup/retro-board/handlers"
	"github.com/CrowderSoup/retro-board/services"
)

// runRelay serves the room relay used for local development and end-to-end
// testing of the client. It keeps no data of its own.
func runRelay(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	printToken := fs.String("print-token", "", "print a dev access token for this email and exit")
	ttl := fs.Duration("ttl", 24*time.Hour, "lifetime of a printed token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	authService := services.NewAuthService(cfg.JWTSecret)
	if email := strings.TrimSpace(*printToken); email != "" {
		// same email, same user id
		id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email)).String()
		token, err := authService.CreateJWT(services.Identity{UserID: id, Email: email}, *ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	hub := services.NewHub()
	go hub.Run()
	defer hub.Stop()

	auth := handlers.NewAuthMiddleware(authService)
	relay := handlers.NewRelayHandler(hub)

	r := mux.NewRouter()
	r.Handle("/api/ws", auth.Auth(http.HandlerFunc(relay.HandleWebSocket)))
	r.HandleFunc("/api/health", relay.Health).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("relay listening", "port", cfg.Port)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("relay stopped")
	return nil
}
