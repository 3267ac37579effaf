package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/markjakearzadon/stkpush-gobackend/internal/config"
	"github.com/markjakearzadon/stkpush-gobackend/internal/db"
	"github.com/markjakearzadon/stkpush-gobackend/internal/handlers"
	"github.com/markjakearzadon/stkpush-gobackend/internal/services"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "stkpush",
		Short:         "M-Pesa STK push initiation and callback reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the transactions indexes (or table) and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context())
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openStore connects the configured backend. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config) (services.TransactionStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return services.NewPostgresTransactionStore(pool), pool.Close, nil
	default:
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		store := services.NewMongoTransactionStore(client.Database(cfg.MongoDatabase))
		return store, func() { db.DisconnectMongo(client) }, nil
	}
}

func migrate(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.EnsureIndexes(ctx); err != nil {
		return err
	}
	log.Printf("Transactions store ready (%s)", cfg.StoreDriver)
	return nil
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	loc, err := cfg.Mpesa.Location()
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.EnsureIndexes(ctx); err != nil {
		return err
	}

	client := &http.Client{Timeout: cfg.Mpesa.ClientTimeout}
	tokens := services.NewDarajaTokenProvider(cfg.Mpesa.BaseURL, cfg.Mpesa.ConsumerKey, cfg.Mpesa.ConsumerSecret, client)
	mpesaService := services.NewMpesaService(store, tokens, client, services.MpesaConfig{
		BaseURL:          cfg.Mpesa.BaseURL,
		ShortCode:        cfg.Mpesa.ShortCode,
		Passkey:          cfg.Mpesa.Passkey,
		CallbackURL:      cfg.Mpesa.CallbackURL,
		AccountReference: cfg.Mpesa.AccountReference,
		TransactionDesc:  cfg.Mpesa.TransactionDesc,
		TransactionType:  cfg.Mpesa.TransactionType,
		Location:         loc,
	})
	mpesaHandler := handlers.NewMpesaHandler(mpesaService)

	router := handlers.NewRouter(mpesaHandler, handlers.RouterConfig{
		CORSOrigin: cfg.CORSOrigin,
		JWTSecret:  cfg.JWTSecret,
	})

	// An initiation makes two gateway calls, each bounded by the client timeout.
	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2*cfg.Mpesa.ClientTimeout + 10*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server running on port %s", cfg.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.Mpesa.ClientTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
