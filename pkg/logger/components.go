package logger

// Component name constants for standardized logging
const (
	// ComponentCore is the top-level bootstrap/cmd component.
	ComponentCore = "Core"

	// ComponentRegistry is the shared tag->(state,backref) registry.
	ComponentRegistry = "Registry"

	// ComponentBus is the per-subsystem blocking MPSC channel.
	ComponentBus = "Bus"

	// ComponentSubsystem is the subsystem state machine.
	ComponentSubsystem = "Subsystem"

	// ComponentWorker is the per-subsystem worker driver goroutine.
	ComponentWorker = "Worker"

	// ComponentGateWatchdog is the background gate-stall observer.
	ComponentGateWatchdog = "GateWatchdog"

	// ComponentConfig is the configuration loader.
	ComponentConfig = "Config"
)
