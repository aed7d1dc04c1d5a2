// Package main is a minimal HTTP health check binary for use in distroless
// containers. It exits 0 when the /health endpoint returns HTTP 200, and 1
// otherwise. Compile with CGO_ENABLED=0 for a fully static binary.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"ratelimiter/internal/version"
	"time"
)

func main() {
	addr := flag.String("addr", defaultAddr(), "Base URL of the rate limiter service")
	timeout := flag.Duration("timeout", 3*time.Second, "Request timeout")
	flag.Parse()

	if err := check(*addr, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultAddr() string {
	port := os.Getenv("RATELIMITER_SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	return "http://localhost:" + port
}

func check(addr string, timeout time.Duration) error {
	req, err := http.NewRequest(http.MethodGet, addr+"/health", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.GetInfo().UserAgent("healthcheck"))

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}
