package main

import (
	"context"
	"log"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/bunyod-abdulloh/vanillewebapp/internal/config"
	"github.com/bunyod-abdulloh/vanillewebapp/internal/notify"
	"github.com/bunyod-abdulloh/vanillewebapp/models"
)

func main() {
	cfg := config.FromEnv()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to access database pool:", err)
	}
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := db.AutoMigrate(
		&models.Shop{},
		&models.Client{},
		&models.Category{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	verifier := initOIDC(cfg)
	notifier := notify.New(cfg)

	r := SetupRouter(db, notifier, AuthMiddleware(verifier))
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatal(err)
	}
}

func initOIDC(cfg config.Config) *oidc.IDTokenVerifier {
	if cfg.OIDCIssuer == "" {
		log.Println("OIDC_ISSUER not set; admin endpoints are disabled")
		return nil
	}
	provider, err := oidc.NewProvider(context.Background(), cfg.OIDCIssuer)
	if err != nil {
		log.Fatal(err)
	}
	return provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID})
}
