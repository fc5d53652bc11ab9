package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/teachflow/teachflow-backend/internal/app"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using process environment")
	}

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}

	application, err := app.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	if err := application.Start(); err != nil {
		application.Log.Error("Failed to start background workers", "error", err)
		os.Exit(1)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		application.Log.Info("Shutting down...")
		application.Close()
		os.Exit(0)
	}()

	fmt.Printf("Server listening on :%s\n", application.Cfg.Port)
	if err := application.Run(); err != nil {
		application.Log.Warn("Server failed", "error", err)
	}
}
