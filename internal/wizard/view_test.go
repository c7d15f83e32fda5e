package wizard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/simexchange/internal/domain"
	"github.com/alanyoungcy/simexchange/internal/wizard"
)

func TestRenderDeployExclusive(t *testing.T) {
	contract := &domain.DeployedContract{Address: "0x00000000000000000000000000000000000000c1"}

	tests := []struct {
		name  string
		props wizard.DeployProps
		want  wizard.Region
	}{
		{"loading", wizard.DeployProps{Loading: true}, wizard.RegionLoading},
		{"contract", wizard.DeployProps{Contract: contract}, wizard.RegionResult},
		{"error", wizard.DeployProps{Error: "reverted"}, wizard.RegionError},
		{"loading wins", wizard.DeployProps{Loading: true, Error: "x", Contract: contract}, wizard.RegionLoading},
		{"error over contract", wizard.DeployProps{Error: "x", Contract: contract}, wizard.RegionError},
		{"empty", wizard.DeployProps{}, wizard.RegionNone},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := wizard.RenderDeploy(tc.props)
			assert.Equal(t, tc.want, v.Region)
			if tc.want == wizard.RegionNone {
				assert.Empty(t, v.Visible())
			} else {
				assert.Equal(t, []wizard.Region{tc.want}, v.Visible())
			}
		})
	}
}

func TestPropsFor(t *testing.T) {
	assert.Equal(t, wizard.DeployProps{}, wizard.PropsFor(nil))
	assert.True(t, wizard.PropsFor(&domain.DeploymentOutcome{Status: domain.DeploymentPending}).Loading)

	failed := wizard.PropsFor(&domain.DeploymentOutcome{Status: domain.DeploymentFailure})
	assert.Equal(t, "deployment failed", failed.Error)

	c := &domain.DeployedContract{Address: "0xabc"}
	ok := wizard.RenderDeploy(wizard.PropsFor(&domain.DeploymentOutcome{Status: domain.DeploymentSuccess, Contract: c}))
	assert.Equal(t, "0xabc", ok.Address)
}
