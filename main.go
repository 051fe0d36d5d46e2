package main

import "trialdesk/internal/app"

func main() {
	app.Main()
}
