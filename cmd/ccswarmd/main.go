// Command ccswarmd is the swarm daemon: it wires the task queue, agent
// pool, executor, proactive monitor and HTTP/WebSocket server together and
// serves them until asked to stop.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ccswarm/ccswarm/internal/autoaccept"
	"github.com/ccswarm/ccswarm/internal/config"
	"github.com/ccswarm/ccswarm/internal/events"
	"github.com/ccswarm/ccswarm/internal/executor"
	"github.com/ccswarm/ccswarm/internal/instance"
	"github.com/ccswarm/ccswarm/internal/metrics"
	"github.com/ccswarm/ccswarm/internal/natsbus"
	"github.com/ccswarm/ccswarm/internal/orchestrator"
	"github.com/ccswarm/ccswarm/internal/persistence"
	"github.com/ccswarm/ccswarm/internal/piece"
	"github.com/ccswarm/ccswarm/internal/pool"
	"github.com/ccswarm/ccswarm/internal/proactive"
	"github.com/ccswarm/ccswarm/internal/server"
	"github.com/ccswarm/ccswarm/internal/tasks"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	teamPath := flag.String("config", "configs/teams.yaml", "Team configuration file")
	projectPath := flag.String("project", "configs/ccswarm.json", "Project configuration file")
	statePath := flag.String("state", "data/state.json", "State persistence file")
	eventsDBPath := flag.String("events-db", "", "Optional SQLite file for durable event delivery (empty disables persistence)")
	natsURL := flag.String("nats-url", "", "External NATS URL to bridge events over (empty starts an embedded server when -nats is set)")
	useNATS := flag.Bool("nats", false, "Bridge the event bus over NATS for multi-process deployments")
	piecePath := flag.String("piece", "", "Run a piece definition once at startup and report its final state")

	status := flag.Bool("status", false, "Show status of the running instance")
	stop := flag.Bool("stop", false, "Stop the running instance gracefully")
	forceStop := flag.Bool("force-stop", false, "Force kill the running instance")
	flag.Parse()

	if *status {
		showInstanceStatus(*statePath, *port)
		os.Exit(0)
	}
	if *stop || *forceStop {
		stopInstance(*statePath, *forceStop)
		os.Exit(0)
	}

	basePath, err := getBasePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to determine base path: %v\n", err)
		os.Exit(1)
	}
	*teamPath = resolvePath(basePath, *teamPath)
	*projectPath = resolvePath(basePath, *projectPath)
	*statePath = resolvePath(basePath, *statePath)

	pidFilePath := filepath.Join(basePath, "data", "ccswarmd.pid")
	instanceMgr := instance.NewManager(pidFilePath, *statePath, *port)

	existing, err := instanceMgr.CheckExistingInstance()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to check for an existing instance: %v\n", err)
		os.Exit(1)
	}
	if existing != nil && existing.IsRunning {
		resolver := instance.NewConflictResolver(instanceMgr, instance.IsInteractive())
		if err := resolver.Resolve(existing); err != nil {
			fmt.Fprintf(os.Stderr, "failed to resolve the instance conflict: %v\n", err)
			os.Exit(1)
		}
		*port = instanceMgr.GetPort()
	}

	if err := instanceMgr.AcquireLock(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to acquire the instance lock: %v\n", err)
		os.Exit(1)
	}
	defer instanceMgr.ReleaseLock()

	team, err := config.LoadTeamConfig(*teamPath)
	if err != nil {
		fmt.Printf("no team configuration at %s, starting with an empty roster (%v)\n", *teamPath, err)
		team = &config.TeamConfig{}
	}

	project, err := config.LoadProjectConfig(*projectPath)
	if err != nil {
		fmt.Printf("no project configuration at %s, using defaults\n", *projectPath)
		defaults := config.DefaultProjectConfig(filepath.Base(basePath), basePath)
		project = &defaults
	}

	var eventStore events.EventStore
	if *eventsDBPath != "" {
		db, err := sql.Open("sqlite", resolvePath(basePath, *eventsDBPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open events database: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		sqliteStore, err := events.NewSQLiteStore(db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize events schema: %v\n", err)
			os.Exit(1)
		}
		eventStore = sqliteStore
	}
	bus := events.NewBus(eventStore)

	queue := tasks.NewQueue()
	agentPool := pool.New(project.Root, project.BranchPrefix, bus)
	planner := orchestrator.New(agentPool, true)
	exec := executor.New(queue, agentPool, planner, bus)

	safetyConfig := autoaccept.DefaultConfig()
	safetyConfig.Enabled = project.AutoAcceptRisk > 0
	exec.SetSafetyEngine(autoaccept.New(safetyConfig))

	collector := metrics.NewCollector()
	alertEngine := metrics.NewAlertEngine(metrics.DefaultThresholds())

	store := persistence.NewJSONStore(*statePath)
	if _, err := store.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load saved state: %v\n", err)
	}
	recorder := persistence.NewRecorder(store, queue, agentPool, 0)
	recorder.Start()

	var bridge *natsbus.Bridge
	var embeddedNATS *natsbus.EmbeddedServer
	if *useNATS {
		url := *natsURL
		if url == "" {
			embeddedNATS = natsbus.NewEmbeddedServer(natsbus.EmbeddedServerConfig{})
			if err := embeddedNATS.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to start the embedded NATS server: %v\n", err)
				os.Exit(1)
			}
			url = embeddedNATS.URL()
		}
		client, err := natsbus.Dial(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to NATS at %s: %v\n", url, err)
			os.Exit(1)
		}
		bridge = natsbus.NewBridge(bus, client, fmt.Sprintf("ccswarmd-%d", os.Getpid()))
		if err := bridge.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start the NATS bridge: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("bridging events over NATS at %s\n", url)
	}

	monitor := proactive.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if project.ProactiveEnabled {
		go runProactiveLoop(ctx, monitor, agentPool, exec, bus)
	}

	srv := server.NewServer(queue, agentPool, bus, collector, alertEngine, exec, project, team, *port)
	// cmd/ccswarmd deliberately never calls srv.SetClientFactory: the model
	// backend driving an agent's session is the actual LLM provider, which
	// sits outside this daemon's scope. Agents spawned through the API stay
	// uninitialized until some external harness wires one in.

	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Start(fmt.Sprintf(":%d", *port)) }()

	if !waitForServer(serverErr, *port, 5*time.Second) {
		fmt.Fprintln(os.Stderr, "server failed to become ready within timeout")
		os.Exit(1)
	}
	fmt.Printf("ccswarmd listening on http://localhost:%d\n", *port)

	if err := instanceMgr.WritePIDFile(os.Getpid(), *port, basePath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write PID file: %v\n", err)
	}

	exec.Start(ctx)

	if *piecePath != "" {
		runPieceOnce(resolvePath(basePath, *piecePath), agentPool)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && !strings.Contains(err.Error(), "Server closed") {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		}
	case <-shutdown:
		fmt.Println("shutting down (signal received)...")
	case <-srv.ShutdownChan:
		fmt.Println("shutting down (dashboard request)...")
	}

	cancel()
	exec.Stop()
	recorder.Stop()
	if err := store.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush final state: %v\n", err)
	}
	if bridge != nil {
		bridge.Stop()
	}
	if embeddedNATS != nil {
		embeddedNATS.Shutdown()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
	}
	instanceMgr.RemovePIDFile()
	fmt.Println("goodbye")
}

// waitForServer polls the health endpoint until it responds, the server
// reports a startup error, or timeout elapses.
func waitForServer(serverErr chan error, port int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case err := <-serverErr:
			fmt.Fprintf(os.Stderr, "server failed to start: %v\n", err)
			return false
		default:
		}
		if instance.HealthCheck(port) == nil {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

// runProactiveLoop ticks the proactive monitor, turning each create_task
// action of a GenerateTask decision it auto-executes into a queued task
// (the dependency graph's unblock action creates nothing) and publishing every other
// auto-executed decision as an EventProactive for the dashboard to surface.
func runProactiveLoop(ctx context.Context, monitor *proactive.Monitor, p *pool.Pool, exec *executor.Executor, bus *events.Bus) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	execute := func(d proactive.Decision) {
		if d.Type == proactive.GenerateTask {
			for _, action := range d.SuggestedActions {
				if action.ActionType != "create_task" {
					continue
				}
				desc := action.Description
				desc = strings.TrimPrefix(desc, "Create follow-up task: ")
				desc = strings.TrimPrefix(desc, "Auto-generate: ")
				exec.AddTask(*tasks.NewTask(desc, d.Reasoning, tasks.Medium, tasks.Development))
			}
			return
		}
		if bus == nil {
			return
		}
		bus.Publish(events.NewEvent(events.EventProactive, "proactive", "all", events.PriorityNormal, map[string]interface{}{
			"decision_type": string(d.Type),
			"reasoning":     d.Reasoning,
			"risk":          string(d.Risk),
		}))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			monitor.AnalyzeAndDecide(p, execute)
		}
	}
}

// runPieceOnce loads and runs a piece definition to completion, reporting
// its final state. Failures are logged, not fatal: a bad -piece flag
// shouldn't bring down the daemon it was meant to exercise.
func runPieceOnce(path string, p *pool.Pool) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read piece %s: %v\n", path, err)
		return
	}
	pc, err := piece.FromYAML(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse piece %s: %v\n", path, err)
		return
	}

	runner := piece.NewRunner(piece.NewPoolExecutor(p))
	state, err := runner.Run(pc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "piece %s failed: %v\n", pc.Name, err)
		return
	}
	fmt.Printf("piece %s finished: status=%s movements=%d\n", pc.Name, state.Status, state.MovementCount)
}

// getBasePath returns the directory containing the executable, falling
// back to the working directory under `go run`, and returning the parent
// directory when the executable sits in a bin/ subdirectory.
func getBasePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return os.Getwd()
	}
	dir := filepath.Dir(exe)
	if filepath.Base(dir) == "exe" || filepath.Base(filepath.Dir(dir)) == "go-build" {
		return os.Getwd()
	}
	if filepath.Base(dir) == "bin" {
		return filepath.Dir(dir), nil
	}
	return dir, nil
}

func resolvePath(basePath, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(basePath, path)
}

// showInstanceStatus prints the running instance's health to stdout, or
// says there isn't one.
func showInstanceStatus(statePath string, port int) {
	basePath, _ := getBasePath()
	mgr := instance.NewManager(filepath.Join(basePath, "data", "ccswarmd.pid"), statePath, port)
	info, err := mgr.CheckExistingInstance()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	if info == nil {
		fmt.Println("no ccswarmd instance is currently running")
		return
	}

	health := "DEGRADED (not responding)"
	if info.IsResponding {
		health = "OK (responding)"
	}
	fmt.Printf("Instance:  RUNNING\n")
	fmt.Printf("  PID:     %d\n", info.PID)
	fmt.Printf("  Port:    %d\n", info.Port)
	fmt.Printf("  Started: %s (%s ago)\n", info.StartTime.Format(time.RFC3339), time.Since(info.StartTime).Round(time.Second))
	fmt.Printf("  Health:  %s\n", health)
	fmt.Printf("  URL:     http://localhost:%d\n", info.Port)
}

// stopInstance stops the running instance, gracefully unless force is set.
func stopInstance(statePath string, force bool) {
	basePath, _ := getBasePath()
	mgr := instance.NewManager(filepath.Join(basePath, "data", "ccswarmd.pid"), statePath, 0)
	info, err := mgr.CheckExistingInstance()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if info == nil {
		fmt.Println("no ccswarmd instance is currently running")
		return
	}

	if force {
		fmt.Printf("force killing process %d...\n", info.PID)
		if err := instance.KillProcess(info.PID); err != nil {
			fmt.Fprintf(os.Stderr, "failed to kill process: %v\n", err)
			os.Exit(1)
		}
		time.Sleep(1 * time.Second)
		mgr.RemovePIDFile()
		fmt.Println("instance terminated")
		return
	}

	fmt.Printf("sending graceful shutdown request to port %d...\n", info.Port)
	if err := instance.SendShutdownRequest(info.Port); err != nil {
		fmt.Fprintf(os.Stderr, "failed to send shutdown request: %v\n", err)
		fmt.Println("try -force-stop to force kill the process")
		os.Exit(1)
	}
	if instance.WaitForPortToBeAvailable(info.Port, 5*time.Second) {
		fmt.Println("instance stopped successfully")
	} else {
		fmt.Println("warning: instance may still be running; try -force-stop")
	}
}
