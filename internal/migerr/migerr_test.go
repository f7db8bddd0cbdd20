package migerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/vitebski/interdb-migrator/pkg/models"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	wrapped := fmt.Errorf("copying users: %w", DestinationNotFound(base))
	if kind := KindOf(wrapped, models.TransferFailed); kind != models.DestinationNotFound {
		t.Errorf("Expected DestinationNotFound, got %s", kind)
	}
	if !errors.Is(wrapped, base) {
		t.Error("Expected wrapped error to unwrap to the base error")
	}

	if kind := KindOf(base, models.TransferFailed); kind != models.TransferFailed {
		t.Errorf("Expected fallback TransferFailed, got %s", kind)
	}
}

func TestErrorMessage(t *testing.T) {
	err := SourceNotFound(fmt.Errorf("table %q has no columns", "users"))
	want := `SourceNotFound: table "users" has no columns`
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}
