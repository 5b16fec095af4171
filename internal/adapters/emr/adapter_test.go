package emr

import (
	"context"
	"testing"

	"github.com/carebridge/platform/internal/shared/config"
)

func TestDisabledAdapterRejectsLookups(t *testing.T) {
	adapter := New(config.EMRConfig{Enabled: false})

	if adapter.Enabled() {
		t.Error("Adapter should report disabled")
	}

	if err := adapter.Start(context.Background()); err != ErrDisabled {
		t.Errorf("Start = %v, want ErrDisabled", err)
	}

	if _, err := adapter.FetchPatientDemographics(context.Background(), "123456"); err != ErrDisabled {
		t.Errorf("FetchPatientDemographics = %v, want ErrDisabled", err)
	}

	if _, err := adapter.FetchPrescriber(context.Background(), "1234567890"); err != ErrDisabled {
		t.Errorf("FetchPrescriber = %v, want ErrDisabled", err)
	}

	if err := adapter.Health(context.Background()); err != ErrDisabled {
		t.Errorf("Health = %v, want ErrDisabled", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	adapter := New(config.EMRConfig{Enabled: false})
	if err := adapter.Stop(); err != nil {
		t.Errorf("Stop on idle adapter = %v, want nil", err)
	}
}
