package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/CedrosPay/secheaders/internal/config"
	"github.com/CedrosPay/secheaders/internal/policy"
)

// headerprobe fetches a URL and compares its security headers with what the
// configured table would emit with every header enabled.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config yaml")
	target := flag.String("url", "http://localhost:8080/", "page to probe")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	table, err := policy.DefaultTable(
		policy.WithCSPDirectives(cfg.Headers.CSPDirectives),
		policy.WithPermissionsDirectives(cfg.Headers.PermissionsDirectives),
	)
	if err != nil {
		log.Fatalf("build table: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, *target, nil)
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("probe %s: %v", *target, err)
	}
	resp.Body.Close()

	probe := policy.RequestFromHTTP(req)
	mismatches := 0
	for _, def := range table.Definitions() {
		got := resp.Header.Get(def.Header)
		want := ""
		if def.Precondition == nil || def.Precondition(probe) {
			want = def.Value(probe)
		}

		switch {
		case got == want && got == "":
			fmt.Printf("  -  %s (not expected)\n", def.Header)
		case got == want:
			fmt.Printf("  ok %s\n", def.Header)
		case got == "":
			fmt.Printf("  !! %s missing (disabled?)\n", def.Header)
			mismatches++
		default:
			fmt.Printf("  !! %s = %q, want %q\n", def.Header, got, want)
			mismatches++
		}
	}

	if mismatches > 0 {
		fmt.Printf("%d header(s) differ from the recommended set\n", mismatches)
		os.Exit(1)
	}
	fmt.Println("all recommended headers present")
}
