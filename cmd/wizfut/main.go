package main

import (
	"github.com/joho/godotenv"

	"github.com/ThurX360/WIZFUT/internal/cli"
)

func main() {
	// Secrets like DISCORD_WEBHOOK_URL conventionally live in a .env file
	// next to the binary; absence is fine.
	_ = godotenv.Load()

	cli.Execute()
}
