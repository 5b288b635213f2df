package main

import "pulse-backend/internal/app"

func main() {
	app.Run()
}
