// Package main bridges WebSocket clients to a Parley ACP subprocess, so
// browser-based frontends can talk to the stdio server.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage frames one line of subprocess output for the client.
type wsMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	// Each connection gets its own subprocess; by default the ACP server.
	args := flag.Args()
	if len(args) == 0 {
		args = []string{"parley", "acp"}
	}

	http.HandleFunc("/ws", handleWS(args))
	fmt.Printf("WebSocket bridge on ws://%s/ws, spawning %v per connection\n", *addr, args)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

func handleWS(cmdArgs []string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}
		defer conn.Close()

		cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			log.Println("stdin pipe error:", err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Println("stdout pipe error:", err)
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			log.Println("stderr pipe error:", err)
			return
		}

		if err := cmd.Start(); err != nil {
			log.Println("start error:", err)
			return
		}
		defer func() {
			cmd.Process.Kill()
			cmd.Wait()
		}()

		// The websocket connection allows a single writer; the stdout and
		// stderr pumps share it.
		var writeMu sync.Mutex
		send := func(kind, line string) error {
			payload, err := json.Marshal(wsMessage{Type: kind, Data: line})
			if err != nil {
				return err
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			return conn.WriteMessage(websocket.TextMessage, payload)
		}

		go pipeLines(stdout, "stdout", send)
		go pipeLines(stderr, "stderr", send)

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Println("ws read error:", err)
				return
			}
			if _, err := stdin.Write(append(msg, '\n')); err != nil {
				log.Println("stdin write error:", err)
				return
			}
		}
	}
}

func pipeLines(r io.Reader, kind string, send func(kind, line string) error) {
	scanner := bufio.NewScanner(r)
	// ACP responses can exceed the default token size once file resources
	// are inlined.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := send(kind, scanner.Text()); err != nil {
			log.Println("ws write error:", err)
			return
		}
	}
}
