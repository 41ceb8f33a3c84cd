package fabric

import (
	"context"
	"errors"
	"testing"

	dockertypes "github.com/docker/docker/api/types"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) (dockertypes.Ping, error) {
	return dockertypes.Ping{}, f.err
}

func TestCheckEnvironment_MissingBinary(t *testing.T) {
	orig := requiredBinaries
	requiredBinaries = []string{"no-such-binary-on-any-path"}
	defer func() { requiredBinaries = orig }()

	err := CheckEnvironment(context.Background(), fakePinger{})
	if err == nil {
		t.Fatal("expected error for a missing binary")
	}
	var envErr *EnvironmentError
	if !errors.As(err, &envErr) {
		t.Fatalf("got %T, want *EnvironmentError", err)
	}
	if envErr.Missing != "no-such-binary-on-any-path" {
		t.Errorf("Missing = %q", envErr.Missing)
	}
}

func TestCheckEnvironment_DaemonDown(t *testing.T) {
	orig := requiredBinaries
	requiredBinaries = nil
	defer func() { requiredBinaries = orig }()

	err := CheckEnvironment(context.Background(), fakePinger{err: errors.New("connection refused")})
	if err == nil {
		t.Fatal("expected error for an unreachable daemon")
	}
	var envErr *EnvironmentError
	if !errors.As(err, &envErr) {
		t.Fatalf("got %T, want *EnvironmentError", err)
	}
	if envErr.Missing != "docker daemon" {
		t.Errorf("Missing = %q", envErr.Missing)
	}
}

func TestCheckEnvironment_AllPresent(t *testing.T) {
	orig := requiredBinaries
	requiredBinaries = nil
	defer func() { requiredBinaries = orig }()

	if err := CheckEnvironment(context.Background(), fakePinger{}); err != nil {
		t.Fatal(err)
	}
}
