package config_test

import (
	"errors"
	"testing"

	"github.com/snehjoshi/spoolq/internal/config"
	"github.com/snehjoshi/spoolq/internal/types"
)

func TestParseOptions(t *testing.T) {
	o, err := config.ParseOptions(map[string]any{
		"queueName":       "orders",
		"queueType":       "lifo",
		"readChunkSize":   float64(100), // as decoded from JSON
		"returnChunkSize": "25",
		"compression":     "s2",
		"fsync":           true,
	})
	if err != nil {
		t.Fatalf("ParseOptions: %v", err)
	}
	qc, err := o.QueueConfig()
	if err != nil {
		t.Fatalf("QueueConfig: %v", err)
	}
	if qc.Name != "orders" || qc.Directory != "orders" {
		t.Errorf("directory should default to the queue name: %+v", qc)
	}
	if qc.Discipline != types.LIFO || qc.ReadChunkSize != 100 || qc.ReturnChunkSize != 25 {
		t.Errorf("queue config: %+v", qc)
	}
	if qc.Compression != "s2" || !qc.Fsync {
		t.Errorf("queue config: %+v", qc)
	}
}

func TestParseOptions_Rejects(t *testing.T) {
	cases := map[string]map[string]any{
		"missing name":     {"directory": "/tmp"},
		"empty name":       {"queueName": "  "},
		"unknown key":      {"queueName": "q", "maxSize": 10},
		"name not string":  {"queueName": 42},
		"zero chunk":       {"queueName": "q", "readChunkSize": 0},
		"negative chunk":   {"queueName": "q", "returnChunkSize": -5},
		"fractional chunk": {"queueName": "q", "readChunkSize": 1.5},
		"chunk not number": {"queueName": "q", "readChunkSize": "many"},
		"fsync not bool":   {"queueName": "q", "fsync": "yes"},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := config.ParseOptions(m); !errors.Is(err, types.ErrConfig) {
				t.Fatalf("want ErrConfig, got %v", err)
			}
		})
	}
}

func TestQueueConfig_InvalidType(t *testing.T) {
	o := config.QueueOptions{QueueName: "q", QueueType: "STACK"}
	_, err := o.QueueConfig()
	if !errors.Is(err, types.ErrConfig) {
		t.Fatalf("want ErrConfig, got %v", err)
	}
	var e *types.Error
	if !errors.As(err, &e) || e.Queue != "q" {
		t.Errorf("error should carry the queue name: %v", err)
	}
}
