package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSetupLogger(t *testing.T) {
	testCases := []struct {
		name      string
		level     string
		format    string
		wantLevel log.Level
		wantJSON  bool
		wantErr   bool
	}{
		{name: "defaults", wantLevel: log.InfoLevel},
		{name: "json debug", level: "debug", format: "JSON", wantLevel: log.DebugLevel, wantJSON: true},
		{name: "text warn", level: "warn", format: "text", wantLevel: log.WarnLevel},
		{name: "bad level", level: "loud", wantErr: true},
		{name: "bad format", format: "xml", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			logger := log.New()
			err := setupLogger(logger, tc.level, tc.format)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if logger.GetLevel() != tc.wantLevel {
				t.Fatalf("expected level %s, got %s", tc.wantLevel, logger.GetLevel())
			}
			if _, isJSON := logger.Formatter.(*log.JSONFormatter); isJSON != tc.wantJSON {
				t.Fatalf("unexpected formatter %T", logger.Formatter)
			}
		})
	}
}
