//go:build !linux
// +build !linux

package platform

type unsupportedNetworkManager struct{}

func newNetworkManager() NetworkManager {
	return unsupportedNetworkManager{}
}

func (unsupportedNetworkManager) IsBlocked(ip string) (bool, error) { return false, ErrUnsupported }

func (unsupportedNetworkManager) BlockIP(ip string) error { return ErrUnsupported }

func (unsupportedNetworkManager) UnblockIP(ip string) error { return ErrUnsupported }
