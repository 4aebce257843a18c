package main

import (
	"log"
	"net/http"
	"os"

	"github.com/dropzero/dropzero/internal/gateway"
)

func main() {
	addr := envOrDefault("GW_ADDR", ":8081")
	sendURL := os.Getenv("GW_SEND_URL")
	uploadURL := os.Getenv("GW_UPLOAD_URL")
	if sendURL == "" {
		log.Fatalf("GW_SEND_URL is required")
	}

	allowlist := gateway.NewTokenAllowlist(os.Getenv("GW_TOKENS"))
	dispatcher := gateway.NewDispatcher(sendURL, uploadURL, os.Getenv("GW_KEY"))
	server := gateway.NewServer(allowlist, dispatcher)

	log.Printf("gateway listening on %s", addr)
	if err := http.ListenAndServe(addr, server); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
