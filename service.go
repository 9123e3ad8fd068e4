package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/kardianos/service"

	"promptpaint/core"
	"promptpaint/shutdown"
)

// serviceRunArg is the argument the installed service starts the binary with.
const serviceRunArg = "run-service"

// Program implements service.Interface. The service manager's Stop is
// forwarded to run as a graceful shutdown.
type Program struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	exitCode int
}

// Start is called when the service is started. It must not block.
func (p *Program) Start(s service.Service) error {
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		p.exitCode = run(p.stop)
	}()
	return nil
}

// Stop asks run to shut down and waits for it. Repeated calls are safe.
func (p *Program) Stop(s service.Service) error {
	p.stopOnce.Do(func() { close(p.stop) })
	select {
	case <-p.done:
		return nil
	case <-time.After(shutdown.DefaultTimeout + 10*time.Second):
		return errors.New("timeout waiting for service to stop")
	}
}

// ServiceConfig returns the service definition used on every platform.
func ServiceConfig() *service.Config {
	return &service.Config{
		Name:        "promptpaint",
		DisplayName: "promptpaint",
		Description: "Local prompt-to-image web UI",
		Arguments:   []string{serviceRunArg},
		Option: service.KeyValue{
			"StartType": "automatic",
			"Restart":   "on-failure",
		},
	}
}

func newService() (service.Service, *Program, error) {
	prg := &Program{}
	s, err := service.New(prg, ServiceConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, prg, nil
}

// PrintServiceUsage prints the help/usage information for service commands.
func PrintServiceUsage(w io.Writer) {
	fmt.Fprintln(w, "promptpaint")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: promptpaint [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  install    Install promptpaint as a system service")
	fmt.Fprintln(w, "  uninstall  Remove the system service (alias: remove)")
	fmt.Fprintln(w, "  start      Start the system service")
	fmt.Fprintln(w, "  stop       Stop the system service")
	fmt.Fprintln(w, "  restart    Restart the system service")
	fmt.Fprintln(w, "  status     Show the current service status")
	fmt.Fprintln(w, "  help       Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run without arguments to start the web UI in the foreground.")
}

// HandleServiceCommand handles service-related command-line arguments.
// Returns true if a service command was handled, false otherwise. A failed
// command exits the process.
func HandleServiceCommand(args []string) bool {
	handled, code, err := handleServiceCommand(args, os.Stdout, control)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if handled && code != 0 {
		os.Exit(code)
	}
	return handled
}

// controlFunc performs one service action.
type controlFunc func(action string, out io.Writer) (int, error)

func handleServiceCommand(args []string, out io.Writer, ctl controlFunc) (bool, int, error) {
	if len(args) < 2 {
		return false, 0, nil
	}

	switch args[1] {
	case "install", "uninstall", "remove", "start", "stop", "restart", "status", serviceRunArg:
		code, err := ctl(args[1], out)
		return true, code, err
	case "help", "-h", "--help", "-help":
		PrintServiceUsage(out)
		return true, 0, nil
	default:
		return false, 0, nil
	}
}

// control talks to the platform service manager through kardianos/service.
func control(action string, out io.Writer) (int, error) {
	s, prg, err := newService()
	if err != nil {
		return 0, err
	}

	switch action {
	case serviceRunArg:
		if err := s.Run(); err != nil {
			return 0, fmt.Errorf("service run failed: %w", err)
		}
		return serviceExitCode(prg.exitCode), nil
	case "status":
		status, err := s.Status()
		if err != nil {
			return 0, fmt.Errorf("failed to get service status: %w", err)
		}
		fmt.Fprintln(out, statusText(status))
		return 0, nil
	case "uninstall", "remove":
		action = "uninstall"
	}

	if err := service.Control(s, action); err != nil {
		return 0, fmt.Errorf("failed to %s service: %w", action, err)
	}
	fmt.Fprintf(out, "Service %s completed successfully\n", action)
	return 0, nil
}

// serviceExitCode treats a signal-driven stop as success: under a service
// manager SIGTERM is the normal way to stop.
func serviceExitCode(code int) int {
	if core.IsSignalExit(code) {
		return core.ExitCodeSuccess
	}
	return code
}

func statusText(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "Service is running"
	case service.StatusStopped:
		return "Service is stopped"
	default:
		return "Service status unknown"
	}
}
