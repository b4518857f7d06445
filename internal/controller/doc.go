// Package controller implements the scale state machine of the lazymc sidecar.
//
// The sidecar runs next to a lazymc proxy. lazymc keeps the game server's
// Deployment at zero replicas until a player connects, then starts the pod
// that contains this sidecar. The sidecar's lifetime is the session: while it
// runs the Deployment stays scaled up, and when Kubernetes terminates the pod
// the Deployment is put back to sleep.
//
// # State Machine
//
//	Reconciling ──scale up (fire and forget)──▶ Idle
//	Idle ──SIGTERM──▶ Terminating ──confirmed / timeout / error──▶ Terminated
//
// Reconciling reads the Deployment's scale and, only when spec.replicas
// differs from MaxReplicas, issues a single scale request. Nothing waits for
// the new pods: lazymc is already waiting for the server to accept
// connections.
//
// Idle parks on the run context. The signal handler in cmd/main.go cancels
// that context; nothing else does.
//
// Terminating issues one scale request to MinReplicas and then reads
// status.replicas every 5 seconds. The first read equal to MinReplicas ends
// the wait successfully. After 120 seconds (24 reads) the controller gives up
// with ErrScaleDownTimeout. There is no rollback.
//
// # Error Handling
//
// API errors from the ScaleClient end the current phase and are returned to
// the caller unchanged; only the confirmation read is repeated. A second
// HandleTermination call returns ErrAlreadyTerminating without touching the
// API.
//
// # Usage
//
//	sc := controller.NewScaleController(cfg, actuator.NewDeploymentScaler(clientset),
//		controller.WithMetrics(recorder))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
//	defer stop()
//
//	if err := sc.Run(ctx); err != nil {
//		setupLog.Error(err, "scale controller failed")
//		os.Exit(1)
//	}
//
// See also:
//   - internal/actuator: deployments/scale client
//   - internal/config: environment-derived settings
package controller
