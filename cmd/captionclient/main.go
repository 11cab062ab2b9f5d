package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/Nick-Bae/deepgram/internal/models"
)

func main() {
	serverURL := flag.String("server", "ws://localhost:8000/ws/translate", "Consumer websocket URL")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("Connected to %s, waiting for captions", *serverURL)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var env models.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				log.Printf("read failed: %v", err)
				return
			}
			switch {
			case env.Mode == "live":
				log.Printf("final #%v: %s", deref(env.Seq), env.Text)
			case env.Mode == "pre":
				log.Printf("preview #%v: %s", deref(env.Seq), env.Text)
			case env.Type == "translation":
				log.Printf("legacy [%s]: %s", env.Lang, env.Payload)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sig:
	case <-done:
	}
}

func deref(seq *int64) int64 {
	if seq == nil {
		return 0
	}
	return *seq
}
