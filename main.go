package main

import (
	firmchat "github.com/firmdesk/firmchat/app"
)

func main() {
	app := firmchat.New(nil, nil)
	app.Start()
}
