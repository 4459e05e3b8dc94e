package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/careslot/careslot-server/cmd/api"
	"github.com/careslot/careslot-server/cmd/models"
	"github.com/careslot/careslot-server/config"
	"github.com/careslot/careslot-server/db"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading configuration from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrations(cfg)
			return
		case "clear-db":
			runDatabaseClear(cfg)
			return
		default:
			log.Fatalf("Unknown command: %s", os.Args[1])
		}
	}

	startServer(cfg)
}

func runMigrations(cfg config.Config) {
	DB, err := db.NewPSQLStorage(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer closeDB(DB)
	log.Println("Connected to the database for migrations")

	if err := performMigrations(DB); err != nil {
		log.Fatalf("Migration error: %v", err)
	}
	log.Println("Migrations completed successfully")
}

func performMigrations(DB *gorm.DB) error {
	migrations := map[interface{}]string{
		&models.User{}:                 "User",
		&models.Credit{}:               "Credit",
		&models.Booking{}:              "Booking",
		&models.BookingStatusHistory{}: "BookingStatusHistory",
		&models.PasswordResetToken{}:   "PasswordResetToken",
		&models.Device{}:               "Device",
		&models.NotificationHistory{}:  "NotificationHistory",
	}

	log.Println("Starting database migrations...")
	for model, name := range migrations {
		log.Printf("Migrating %s table...", name)
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", name, err)
		}
		log.Printf("%s migration successful", name)
	}

	log.Println("All migrations completed successfully")
	return nil
}

func startServer(cfg config.Config) {
	DB, err := db.NewPSQLStorage(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer closeDB(DB)
	log.Println("Connected to the database")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	server := api.NewApiServer(":"+cfg.ServerPort, DB, cfg)

	go func() {
		if err := server.Run(); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()
	log.Printf("Server running on port %s", cfg.ServerPort)

	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func closeDB(DB *gorm.DB) {
	sqlDB, _ := DB.DB()
	sqlDB.Close()
	log.Println("Database connection closed")
}

func runDatabaseClear(cfg config.Config) {
	DB, err := db.NewPSQLStorage(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer closeDB(DB)

	log.Println("Preparing to clear database...")

	var confirmation string
	fmt.Print("Are you sure you want to clear the database? (yes/no): ")
	fmt.Scanln(&confirmation)

	if confirmation != "yes" {
		log.Println("Database clearing cancelled.")
		return
	}

	tables := []interface{}{
		&models.BookingStatusHistory{},
		&models.Booking{},
		&models.Credit{},
		&models.NotificationHistory{},
		&models.Device{},
		&models.PasswordResetToken{},
		&models.User{},
	}

	log.Println("Dropping tables...")
	for _, table := range tables {
		if err := DB.Migrator().DropTable(table); err != nil {
			log.Printf("Warning dropping table %T: %v", table, err)
		} else {
			log.Printf("Table %T dropped", table)
		}
	}

	log.Println("Database cleared successfully")
}
