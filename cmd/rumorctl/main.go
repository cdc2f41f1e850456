// rumorctl is a thin HTTP client for a running rumorpeerd's admin surface —
// the direct replacement for the retrieved originals' UDP-based client
// companion binary. It carries no gossip-protocol knowledge of its own.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

func main() {
	// Same uid-derived default as rumorpeerd's -admin-addr (transport.AdminPort).
	defaultAddr := fmt.Sprintf("http://127.0.0.1:%d", 50000+os.Getuid()%4096)
	addr := flag.String("addr", defaultAddr, "base URL of the target peer's admin surface")
	flag.Parse()

	text := strings.Join(flag.Args(), " ")
	if text == "" {
		fmt.Fprintln(os.Stderr, "usage: rumorctl [-addr url] <message>")
		os.Exit(2)
	}

	if err := postMessage(*addr, text); err != nil {
		fmt.Fprintln(os.Stderr, "rumorctl:", err)
		os.Exit(1)
	}
}

func postMessage(baseAddr, text string) error {
	body, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	resp, err := http.Post(baseAddr+"/api/messages", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
