package daemon

import (
	"testing"

	"go.uber.org/fx"
)

// The full module graph must resolve: every provider's dependencies are
// satisfied and the lifecycle invoke type-checks. Nothing is executed.
func TestModuleGraphResolves(t *testing.T) {
	if err := fx.ValidateApp(Module(Params{SessionName: "main"})); err != nil {
		t.Fatalf("fx.ValidateApp() error = %v", err)
	}
}
