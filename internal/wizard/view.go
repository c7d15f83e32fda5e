package wizard

import "github.com/alanyoungcy/simexchange/internal/domain"

// Region is one display area of the deploying step.
type Region string

const (
	RegionNone    Region = "none"
	RegionLoading Region = "loading"
	RegionError   Region = "error"
	RegionResult  Region = "result"
)

// DeployProps is what the deploying step is rendered from.
type DeployProps struct {
	Loading  bool                     `json:"loading"`
	Error    string                   `json:"error,omitempty"`
	Contract *domain.DeployedContract `json:"contract,omitempty"`
}

// PropsFor derives render props from an outcome. A nil outcome yields empty
// props.
func PropsFor(outcome *domain.DeploymentOutcome) DeployProps {
	if outcome == nil {
		return DeployProps{}
	}
	switch outcome.Status {
	case domain.DeploymentPending:
		return DeployProps{Loading: true}
	case domain.DeploymentFailure:
		msg := outcome.Error
		if msg == "" {
			msg = "deployment failed"
		}
		return DeployProps{Error: msg}
	case domain.DeploymentSuccess:
		return DeployProps{Contract: outcome.Contract}
	}
	return DeployProps{}
}

// DeployView is the rendered deploying step. Exactly one region is shown.
type DeployView struct {
	Region  Region `json:"region"`
	Message string `json:"message,omitempty"`
	Address string `json:"address,omitempty"`
	TxHash  string `json:"txHash,omitempty"`
}

// RenderDeploy picks the single visible region. Loading wins over an error,
// an error wins over a contract.
func RenderDeploy(p DeployProps) DeployView {
	switch {
	case p.Loading:
		return DeployView{Region: RegionLoading}
	case p.Error != "":
		return DeployView{Region: RegionError, Message: p.Error}
	case p.Contract != nil:
		return DeployView{Region: RegionResult, Address: p.Contract.Address, TxHash: p.Contract.TxHash}
	}
	return DeployView{Region: RegionNone}
}

// Visible lists the regions shown by v.
func (v DeployView) Visible() []Region {
	if v.Region == RegionNone || v.Region == "" {
		return nil
	}
	return []Region{v.Region}
}
