package service

import (
	"fmt"
	"os"

	"github.com/kardianos/service"
)

const serviceName = "relayblock"

type ServiceManager struct {
	service service.Service
}

type program struct {
	daemon *Daemon
}

func (p *program) Start(s service.Service) error {
	if p.daemon == nil {
		return fmt.Errorf("no daemon configured")
	}
	return p.daemon.Start()
}

func (p *program) Stop(s service.Service) error {
	if p.daemon == nil {
		return nil
	}
	return p.daemon.Stop()
}

// NewServiceManager wraps the system service definition. daemon may be nil
// when the manager is only used to install, control or query the service.
func NewServiceManager(daemon *Daemon) (*ServiceManager, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	svcConfig := &service.Config{
		Name:        serviceName,
		DisplayName: "Relay Block",
		Description: "Keeps blackholed game relay addresses blocked across reboots",
		Executable:  execPath,
		Arguments:   []string{"service", "run"},
		Option: service.KeyValue{
			"Restart":   "on-failure",
			"RunAtLoad": true,
			"KeepAlive": true,
		},
	}

	svc, err := service.New(&program{daemon: daemon}, svcConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return &ServiceManager{service: svc}, nil
}

func (sm *ServiceManager) Install() error {
	return sm.service.Install()
}

func (sm *ServiceManager) Uninstall() error {
	return sm.service.Uninstall()
}

func (sm *ServiceManager) Start() error {
	return sm.service.Start()
}

func (sm *ServiceManager) Stop() error {
	return sm.service.Stop()
}

func (sm *ServiceManager) Restart() error {
	return sm.service.Restart()
}

func (sm *ServiceManager) Status() (string, error) {
	status, err := sm.service.Status()
	if err != nil {
		return "Unknown", err
	}
	return statusName(status), nil
}

// Run blocks until the service manager or a signal stops the program.
func (sm *ServiceManager) Run() error {
	return sm.service.Run()
}

func statusName(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "Running"
	case service.StatusStopped:
		return "Stopped"
	case service.StatusUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Status(%d)", int(status))
	}
}

// GetServiceConfigPath returns the platform-specific unit location.
func GetServiceConfigPath() string {
	switch service.Platform() {
	case "linux-systemd":
		return "/etc/systemd/system/" + serviceName + ".service"
	case "linux-openrc":
		return "/etc/init.d/" + serviceName
	case "unix-systemv":
		return "/etc/init.d/" + serviceName
	case "darwin-launchd":
		return "/Library/LaunchDaemons/" + serviceName + ".plist"
	default:
		return "Unknown platform"
	}
}
