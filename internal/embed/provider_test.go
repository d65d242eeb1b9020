package embed

import (
	"testing"
	"time"

	"github.com/nucleus/homegraph/internal/config"
)

func TestNew_HTTPProviderCarriesBatchTimeout(t *testing.T) {
	p, err := New(config.Embedding{Provider: config.ProviderVoyage, APIKey: "k", Dimension: 8}, 5*time.Second)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	hp, ok := p.(*httpProvider)
	if !ok {
		t.Fatalf("expected httpProvider, got %T", p)
	}
	if hp.client.Timeout != 5*time.Second {
		t.Errorf("expected configured timeout, got %s", hp.client.Timeout)
	}
}

func TestNew_UnknownProviderFails(t *testing.T) {
	if _, err := New(config.Embedding{Provider: "carrier-pigeon"}, time.Second); err == nil {
		t.Error("expected error for unknown provider")
	}
}
