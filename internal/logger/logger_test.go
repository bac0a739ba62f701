// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package logger

import (
	"testing"
	"time"

	"github.com/northbound/rag-core/internal/apierr"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":    LevelDebug,
		"info":     LevelInfo,
		"warn":     LevelWarn,
		"error":    LevelError,
		"":         LevelInfo,
		"nonsense": LevelInfo,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	l := &Logger{
		minLevel:    LevelWarn,
		broadcast:   make(chan string, 10),
		subscribers: make(map[chan string]bool),
	}
	go l.broadcastLoop()

	sub, _ := l.Subscribe()

	l.Debugf("should be dropped")
	l.Printf("should also be dropped")
	l.Warnf("this one should pass")

	select {
	case msg := <-sub:
		if !contains(msg, "this one should pass") {
			t.Errorf("expected the WARN message to pass the filter, got %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast message at WARN level, got none")
	}

	select {
	case msg := <-sub:
		t.Errorf("expected no further messages below the WARN floor, got %q", msg)
	default:
	}
}

func TestLogger_LogError_WrapsAPIErrCode(t *testing.T) {
	l := &Logger{
		minLevel:    LevelDebug,
		broadcast:   make(chan string, 10),
		subscribers: make(map[chan string]bool),
	}
	go l.broadcastLoop()
	sub, _ := l.Subscribe()

	l.LogError("ingest", apierr.New(apierr.CodeChunkingError, "bad chunk"))

	select {
	case msg := <-sub:
		if !contains(msg, string(apierr.CodeChunkingError)) {
			t.Errorf("expected logged message to carry the error code, got %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast message, got none")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
