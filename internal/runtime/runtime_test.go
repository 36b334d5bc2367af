package runtime

import (
	"context"
	"testing"

	"github.com/portcullis-io/portcullis/internal/config"
	"github.com/portcullis-io/portcullis/internal/core/domain"
	"github.com/portcullis-io/portcullis/internal/core/ports"
	"github.com/portcullis-io/portcullis/internal/registry"
)

func minimalConfig() *config.Config {
	return &config.Config{
		Contract: config.ContractConfig{Path: "/etc/p/contract.json"},
		Policy:   config.PolicyConfig{Path: "/etc/p/policy.rego"},
	}
}

func TestNew_RequiresContractAndPolicyPaths(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("nil config accepted")
	}

	cfg := minimalConfig()
	cfg.Contract.Path = ""
	if _, err := New(cfg); err == nil {
		t.Error("missing contract path accepted")
	}

	cfg = minimalConfig()
	cfg.Policy.Path = ""
	if _, err := New(cfg); err == nil {
		t.Error("missing policy path accepted")
	}
}

type nopSink struct{}

func (nopSink) RecordRequest(context.Context, ports.RequestRecord) {}

func (nopSink) ReloadFailed(string, error) {}

func TestNew_AppliesOptions(t *testing.T) {
	container := registry.NewContainer()
	var hooked bool
	rt, err := New(minimalConfig(),
		WithTelemetrySink(nopSink{}),
		WithContainer(container),
		WithPreHandler(func(context.Context, domain.RequestContext, *domain.Request, *domain.Response) {
			hooked = true
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rt.sink == nil {
		t.Error("sink option not applied")
	}
	if rt.container != container {
		t.Error("container option not applied")
	}
	if rt.preHandler == nil {
		t.Error("pre-handler option not applied")
	}
	rt.preHandler(context.Background(), domain.RequestContext{}, nil, nil)
	if !hooked {
		t.Error("stored hook is not the provided one")
	}
}

func TestRuntime_RegistryAvailableBeforeStart(t *testing.T) {
	rt, err := New(minimalConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rt.Registry().RegisterFunc("op", func(context.Context, *registry.Invocation) (any, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
}

func TestRuntime_ShutdownBeforeStart(t *testing.T) {
	rt, err := New(minimalConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown before Start: %v", err)
	}
}
