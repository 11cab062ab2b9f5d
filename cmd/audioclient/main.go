package main

import (
	"encoding/binary"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// Stream audio in chunks to simulate real-time capture.
// At 48kHz 16-bit mono = 96000 bytes/second; 100ms chunks = 9600 bytes.
const chunkSize = 9600
const chunkIntervalMs = 100

func main() {
	audioFile := flag.String("audio", "testdata/sample-48khz.wav", "Path to WAV file (48kHz 16-bit mono)")
	serverURL := flag.String("server", "ws://localhost:8000/ws/stt", "Producer websocket URL")
	source := flag.String("source", "ko", "Source language")
	target := flag.String("target", "en", "Target language")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 { // PCM
		log.Fatal("Only PCM format supported")
	}
	if sampleRate != 48000 {
		log.Printf("Warning: Sample rate is %d Hz, expected 48000 Hz", sampleRate)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL+"?source="+*source+"&target="+*target, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("Connected to %s (source=%s target=%s)", *serverURL, *source, *target)

	// Print caption frames coming back on the same socket
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame map[string]any
			if err := json.Unmarshal(raw, &frame); err != nil {
				continue
			}
			switch {
			case frame["type"] == "stt.partial":
				log.Printf("  partial: %v", frame["text"])
			case frame["mode"] == "live":
				log.Printf("✅ final #%v: %v", frame["seq"], frame["text"])
			}
		}
	}()

	audioChunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := f.Read(audioChunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}

		chunkNum++
		totalBytes += int64(n)

		if err := conn.WriteMessage(websocket.BinaryMessage, audioChunk[:n]); err != nil {
			log.Fatalf("Failed to send chunk: %v", err)
		}

		if chunkNum%10 == 0 {
			log.Printf("Sent chunk %d (%d bytes total)", chunkNum, totalBytes)
		}

		// Simulate real-time streaming
		time.Sleep(chunkIntervalMs * time.Millisecond)
	}

	elapsed := time.Since(startTime)
	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, elapsed)

	// Flush whatever is buffered, then wait for final captions
	log.Println("Requesting finalize, waiting for final captions...")
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"finalize"}`)); err != nil {
		log.Fatalf("Failed to send finalize: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
	log.Println("Done")
}
