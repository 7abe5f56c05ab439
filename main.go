package main

import "tokenladder/internal/app"

func main() {
	app.Main()
}
