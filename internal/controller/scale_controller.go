/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/lazymc-k8s-scaler/internal/actuator"
	"github.com/llm-d/lazymc-k8s-scaler/internal/config"
	"github.com/llm-d/lazymc-k8s-scaler/internal/logging"
	"github.com/llm-d/lazymc-k8s-scaler/internal/metrics"
)

const (
	// DefaultPollInterval is the pause between two reads of the observed replica count.
	DefaultPollInterval = 5 * time.Second
	// DefaultScaleDownTimeout bounds the total wait for a scale-down to be observed.
	DefaultScaleDownTimeout = 120 * time.Second
)

var (
	// ErrScaleDownTimeout is returned when the scale-down was not observed in time.
	ErrScaleDownTimeout = errors.New("timed out waiting for deployment to scale down")
	// ErrAlreadyTerminating is returned by HandleTermination after its first call.
	ErrAlreadyTerminating = errors.New("termination already in progress")
)

// ScaleController keeps one Deployment at its active replica count for as long
// as the process lives and puts it back to sleep on termination.
type ScaleController struct {
	cfg     config.Config
	client  actuator.ScaleClient
	clock   clock.Clock
	metrics *metrics.Recorder

	pollInterval time.Duration
	timeout      time.Duration

	state       atomic.Int32
	terminating atomic.Bool
}

// Option customizes a ScaleController.
type Option func(*ScaleController)

// WithClock replaces the wall clock used by the confirmation wait.
func WithClock(c clock.Clock) Option {
	return func(sc *ScaleController) {
		sc.clock = c
	}
}

// WithPollInterval overrides DefaultPollInterval. Non-positive values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(sc *ScaleController) {
		if d > 0 {
			sc.pollInterval = d
		}
	}
}

// WithScaleDownTimeout overrides DefaultScaleDownTimeout. Non-positive values are ignored.
func WithScaleDownTimeout(d time.Duration) Option {
	return func(sc *ScaleController) {
		if d > 0 {
			sc.timeout = d
		}
	}
}

// WithMetrics records scale transitions on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(sc *ScaleController) {
		sc.metrics = r
	}
}

// NewScaleController returns a controller in StateReconciling.
func NewScaleController(cfg config.Config, client actuator.ScaleClient, opts ...Option) *ScaleController {
	sc := &ScaleController{
		cfg:          cfg,
		client:       client,
		clock:        clock.RealClock{},
		pollInterval: DefaultPollInterval,
		timeout:      DefaultScaleDownTimeout,
	}
	for _, opt := range opts {
		opt(sc)
	}
	sc.state.Store(int32(StateReconciling))
	return sc
}

// State returns the current lifecycle phase.
func (sc *ScaleController) State() State {
	return State(sc.state.Load())
}

// Run applies the active replica count, then blocks until ctx is cancelled and
// runs the shutdown sequence. ctx is only a termination trigger: the API calls
// run on a detached context, so a signal received while reconciling is handled
// once reconciliation completes instead of aborting it.
func (sc *ScaleController) Run(ctx context.Context) error {
	logger := ctrl.LoggerFrom(ctx)
	apiCtx := context.WithoutCancel(ctx)

	if err := sc.Reconcile(apiCtx); err != nil {
		return err
	}

	logger.V(logging.DEBUG).Info("Waiting indefinitely")
	<-ctx.Done()

	logger.Info("Received termination signal")
	return sc.HandleTermination(apiCtx)
}

// Reconcile scales the deployment to MaxReplicas unless it is already there.
// The request is not awaited.
func (sc *ScaleController) Reconcile(ctx context.Context) error {
	logger := ctrl.LoggerFrom(ctx).WithValues(
		"deployment", sc.cfg.WorkloadName,
		"namespace", sc.cfg.WorkloadNamespace)

	current, err := sc.client.GetScale(ctx, sc.cfg.WorkloadNamespace, sc.cfg.WorkloadName)
	if err != nil {
		return err
	}

	if current.DesiredReplicas != sc.cfg.MaxReplicas {
		logger.Info("Scaling deployment", "replicas", sc.cfg.MaxReplicas)
		err := sc.client.SetScale(ctx, sc.cfg.WorkloadNamespace, sc.cfg.WorkloadName, sc.cfg.MaxReplicas)
		sc.metrics.ScaleRequest(sc.cfg.WorkloadNamespace, sc.cfg.WorkloadName,
			metrics.Direction(current.DesiredReplicas, sc.cfg.MaxReplicas), sc.cfg.MaxReplicas, err)
		if err != nil {
			return err
		}
	} else {
		logger.V(logging.DEBUG).Info("Deployment already at active replica count", "replicas", current.DesiredReplicas)
	}

	// Termination may already have started from another goroutine.
	sc.state.CompareAndSwap(int32(StateReconciling), int32(StateIdle))
	return nil
}

// HandleTermination scales the deployment to MinReplicas and waits until the
// scheduler reports that many running replicas. Only the first call does any
// work; later calls return ErrAlreadyTerminating.
func (sc *ScaleController) HandleTermination(ctx context.Context) error {
	logger := ctrl.LoggerFrom(ctx).WithValues(
		"deployment", sc.cfg.WorkloadName,
		"namespace", sc.cfg.WorkloadNamespace)

	if !sc.terminating.CompareAndSwap(false, true) {
		logger.Info("Termination already in progress, ignoring")
		return ErrAlreadyTerminating
	}
	sc.state.Store(int32(StateTerminating))
	defer sc.state.Store(int32(StateTerminated))

	logger.Info("Scaling deployment", "replicas", sc.cfg.MinReplicas)
	err := sc.client.SetScale(ctx, sc.cfg.WorkloadNamespace, sc.cfg.WorkloadName, sc.cfg.MinReplicas)
	sc.metrics.ScaleRequest(sc.cfg.WorkloadNamespace, sc.cfg.WorkloadName,
		metrics.DirectionDown, sc.cfg.MinReplicas, err)
	if err != nil {
		return err
	}

	return sc.waitForScaleDown(ctrl.LoggerInto(ctx, logger))
}

// waitForScaleDown polls every pollInterval until the observed replica count
// equals MinReplicas or timeout worth of intervals has elapsed.
func (sc *ScaleController) waitForScaleDown(ctx context.Context) error {
	logger := ctrl.LoggerFrom(ctx)
	start := sc.clock.Now()

	for waited := time.Duration(0); waited < sc.timeout; waited += sc.pollInterval {
		current, err := sc.client.GetScale(ctx, sc.cfg.WorkloadNamespace, sc.cfg.WorkloadName)
		sc.metrics.ConfirmationPoll(sc.cfg.WorkloadNamespace, sc.cfg.WorkloadName)
		if err != nil {
			sc.metrics.ConfirmationFinished(sc.cfg.WorkloadNamespace, sc.cfg.WorkloadName,
				metrics.OutcomeError, sc.clock.Since(start))
			return err
		}

		if current.ObservedReplicas == sc.cfg.MinReplicas {
			logger.Info("Successfully scaled deployment", "replicas", sc.cfg.MinReplicas)
			sc.metrics.ConfirmationFinished(sc.cfg.WorkloadNamespace, sc.cfg.WorkloadName,
				metrics.OutcomeConfirmed, sc.clock.Since(start))
			return nil
		}

		logger.V(logging.DEBUG).Info("Waiting for deployment to scale down",
			"observedReplicas", current.ObservedReplicas,
			"waited", waited)
		sc.clock.Sleep(sc.pollInterval)
	}

	sc.metrics.ConfirmationFinished(sc.cfg.WorkloadNamespace, sc.cfg.WorkloadName,
		metrics.OutcomeTimeout, sc.clock.Since(start))
	logger.Error(ErrScaleDownTimeout, "Failed to scale down deployment", "timeout", sc.timeout)
	logger.Error(ErrScaleDownTimeout, "Bailing out, you're on your own", "severity", "fatal")
	return fmt.Errorf("%w after %s", ErrScaleDownTimeout, sc.timeout)
}
